package transform

import (
	"context"

	"github.com/myelin-ml/myelin/flow"
)

// AddNegToSub rewrites Add(a, Neg(b)) into Sub(a, b) whenever Neg has a
// single consumer (the Add), removing the now-dead Neg op and its
// output variable.
type AddNegToSub struct{}

func (AddNegToSub) Name() string { return "AddNegToSub" }

func (AddNegToSub) Apply(ctx context.Context, f *flow.Flow) (bool, error) {
	changed := false

	for _, op := range append([]*flow.Operation(nil), f.Ops...) {
		if op.Type != "Add" || len(op.Inputs) != 2 {
			continue
		}

		for side := 0; side < 2; side++ {
			neg := op.Inputs[side].Producer
			if neg == nil || neg.Type != "Neg" || len(neg.Inputs) != 1 || len(neg.Outputs) != 1 {
				continue
			}

			negOut := op.Inputs[side]
			if len(negOut.Consumers) != 1 || negOut.Output() {
				continue
			}

			other := op.Inputs[1-side]

			op.Type = "Sub"
			op.Inputs[0] = other
			op.Inputs[1] = neg.Inputs[0]

			removeAsConsumer(negOut, neg)
			neg.Inputs[0].Consumers = append(neg.Inputs[0].Consumers, op)

			f.RemoveOperation(neg)
			f.RemoveVariable(negOut)

			changed = true

			break
		}
	}

	return changed, nil
}
