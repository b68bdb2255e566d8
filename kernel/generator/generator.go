// Package generator implements the expression generator (spec §4.4):
// it turns a fused Calculate/Assign step's recipe into assembler code,
// one instruction per recipe op, loading operands from and storing
// results back to the step's planned tensor offsets.
package generator

import (
	"math"

	"tlog.app/go/errors"

	"github.com/myelin-ml/myelin/asm"
	"github.com/myelin-ml/myelin/compile"
	"github.com/myelin-ml/myelin/expr"
)

// Generate parses step's "expr" recipe and emits its computation into
// masm, loading every operand from the step's input tensors (constant
// or not, they are both ordinary instance memory by the time code
// generation runs) and storing every recipe output to the
// corresponding output tensor.
func Generate(step *compile.Step, masm *asm.Assembler) error {
	text := step.Attr("expr")
	if text == "" {
		return errors.New("step %s: no recipe attached", step.Name)
	}

	e, err := expr.Parse(text)
	if err != nil {
		return errors.Wrap(err, "step %s", step.Name)
	}

	base := masm.LoadInstancePtr()

	regs := map[string]asm.Reg{}
	key := func(v *expr.Var) string { return v.String() }

	inIdx, constIdx := 0, 0

	for _, t := range step.Inputs {
		var v *expr.Var

		if t.Constant {
			v = e.Var(expr.Const, constIdx)
			constIdx++
		} else {
			v = e.Var(expr.Input, inIdx)
			inIdx++
		}

		regs[key(v)] = masm.Load(base, t.Offset)
	}

	resolve := func(v *expr.Var) (asm.Reg, error) {
		if r, ok := regs[key(v)]; ok {
			return r, nil
		}

		if v.Type == expr.Number {
			r := masm.Imm(numberBits(step, v.ID))
			regs[key(v)] = r

			return r, nil
		}

		return 0, errors.New("step %s: operand %s used before it was produced", step.Name, v.String())
	}

	for _, op := range e.Ops {
		args := make([]asm.Reg, len(op.Args))

		for i, a := range op.Args {
			r, err := resolve(a)
			if err != nil {
				return err
			}

			args[i] = r
		}

		name := op.Type.String()

		var out asm.Reg

		switch len(args) {
		case 1:
			out = masm.UnOp(name, args[0])
		case 2:
			out = masm.BinOp(name, args[0], args[1])
		case 3:
			out = masm.TernOp(name, args[0], args[1], args[2])
		default:
			return errors.New("step %s: op %s has unsupported arity %d", step.Name, name, len(args))
		}

		regs[key(op.Result)] = out
	}

	outIdx := 0

	for _, t := range step.Outputs {
		v := e.Var(expr.Output, outIdx)
		outIdx++

		r, ok := regs[key(v)]
		if !ok {
			return errors.New("step %s: recipe never produces output %d", step.Name, outIdx-1)
		}

		masm.Store(base, t.Offset, r)
	}

	return nil
}

// numberBits returns the bit pattern for system numeric constant id,
// sized to the step's (first) output element type.
func numberBits(step *compile.Step, id int) uint64 {
	v, _ := expr.NumberValue(id)

	t := step.Inputs[0].Type
	if len(step.Outputs) > 0 {
		t = step.Outputs[0].Type
	}

	if t.Size() == 4 {
		return uint64(math.Float32bits(float32(v)))
	}

	return math.Float64bits(v)
}
