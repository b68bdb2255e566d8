package flow

import (
	"strconv"
	"strings"

	"tlog.app/go/errors"
)

// Pattern matches a chain of operations connected by producer/consumer
// edges at specific input positions, e.g. "Neg|1:Add" matches a Neg
// whose (sole) output feeds input position 1 of an Add.
//
// Grammar: pattern := type ('|' [index ':'] type)*
// An omitted index matches the output at any consumer input position.
type Pattern struct {
	steps []patternStep
}

type patternStep struct {
	opType string
	index  int // -1 = any
}

// ParsePattern compiles a pattern string.
func ParsePattern(s string) (Pattern, error) {
	var p Pattern

	for i, seg := range strings.Split(s, "|") {
		idx := -1
		typ := seg

		if i > 0 {
			if at := strings.IndexByte(seg, ':'); at >= 0 {
				n, err := strconv.Atoi(seg[:at])
				if err != nil {
					return Pattern{}, errors.Wrap(err, "pattern %q: bad index in segment %q", s, seg)
				}

				idx = n
				typ = seg[at+1:]
			}
		}

		if typ == "" {
			return Pattern{}, errors.New("pattern %q: empty op type in segment %q", s, seg)
		}

		p.steps = append(p.steps, patternStep{opType: typ, index: idx})
	}

	if len(p.steps) == 0 {
		return Pattern{}, errors.New("pattern %q: empty", s)
	}

	return p, nil
}

// Find returns every chain of operations in the flow matching pattern.
// Each returned chain has len(pattern.steps) operations, in pattern
// order.
func (f *Flow) Find(pattern string) ([][]*Operation, error) {
	p, err := ParsePattern(pattern)
	if err != nil {
		return nil, err
	}

	var out [][]*Operation

	for _, op := range f.Ops {
		if op.Type != p.steps[0].opType {
			continue
		}

		chains := extend(op, p.steps[1:])
		out = append(out, chains...)
	}

	return out, nil
}

func extend(head *Operation, rest []patternStep) [][]*Operation {
	if len(rest) == 0 {
		return [][]*Operation{{head}}
	}

	step := rest[0]

	var out [][]*Operation

	for _, v := range head.Outputs {
		for _, c := range v.Consumers {
			if c.Type != step.opType {
				continue
			}

			if step.index >= 0 && c.InputIndex(v) != step.index {
				continue
			}

			for _, tail := range extend(c, rest[1:]) {
				out = append(out, append([]*Operation{head}, tail...))
			}
		}
	}

	return out
}
