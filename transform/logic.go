package transform

import (
	"context"

	"github.com/myelin-ml/myelin/flow"
)

// LogicTransformer folds Not over comparisons, eliminates double
// negation, and fuses Not(x) And y into AndNot(y, x).
type LogicTransformer struct{}

func (LogicTransformer) Name() string { return "LogicTransformer" }

var negatedComparison = map[string]string{
	"Equal": "NotEqual", "NotEqual": "Equal",
	"Less": "GreaterEqual", "GreaterEqual": "Less",
	"LessEqual": "Greater", "Greater": "LessEqual",
}

func (LogicTransformer) Apply(ctx context.Context, f *flow.Flow) (bool, error) {
	changed := false

	for _, op := range append([]*flow.Operation(nil), f.Ops...) {
		if op.Type != "Not" || len(op.Inputs) != 1 || len(op.Outputs) != 1 {
			continue
		}

		src := op.Inputs[0]
		producer := src.Producer

		// Not(Not(x)) -> x
		if producer != nil && producer.Type == "Not" && len(producer.Inputs) == 1 &&
			len(src.Consumers) == 1 && !src.Output() {
			if err := f.Eliminate(op); err != nil {
				continue
			}

			if err := f.Eliminate(producer); err != nil {
				continue
			}

			changed = true

			continue
		}

		// Not(cmp) -> negated cmp, eliminating the Not wrapper.
		if producer != nil {
			if neg, ok := negatedComparison[producer.Type]; ok && len(src.Consumers) == 1 && !src.Output() {
				old := producer.Type
				producer.Type = neg
				if err := f.Eliminate(op); err == nil {
					changed = true
					continue
				}

				producer.Type = old // Not kept: keep the comparison as it was
			}
		}
	}

	// Not(x) And y -> AndNot(y, x), order-preserving.
	for _, op := range append([]*flow.Operation(nil), f.Ops...) {
		if op.Type != "And" || len(op.Inputs) != 2 {
			continue
		}

		for side := 0; side < 2; side++ {
			not := op.Inputs[side].Producer
			if not == nil || not.Type != "Not" || len(not.Inputs) != 1 {
				continue
			}

			notOut := op.Inputs[side]
			if len(notOut.Consumers) != 1 || notOut.Output() {
				continue
			}

			other := op.Inputs[1-side]

			op.Type = "AndNot"
			op.Inputs[0] = other
			op.Inputs[1] = not.Inputs[0]

			removeAsConsumer(notOut, not)
			not.Inputs[0].Consumers = append(not.Inputs[0].Consumers, op)

			f.RemoveOperation(not)
			f.RemoveVariable(notOut)

			changed = true

			break
		}
	}

	return changed, nil
}
