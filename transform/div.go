package transform

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/myelin-ml/myelin/flow"
)

// DivTransformer rewrites division by a single-element float constant
// into multiplication by its precomputed reciprocal, Div(1,x) into
// Reciprocal(x), and Reciprocal(Sqrt(x)) into Rsqrt(x) when the
// intermediate Sqrt result is not externally observable.
type DivTransformer struct{}

func (DivTransformer) Name() string { return "DivTransformer" }

func (DivTransformer) Apply(ctx context.Context, f *flow.Flow) (bool, error) {
	changed := false

	for _, op := range append([]*flow.Operation(nil), f.Ops...) {
		if op.Type != "Div" || len(op.Inputs) != 2 {
			continue
		}

		numerator, denom := op.Inputs[0], op.Inputs[1]

		if numerator.Constant() && numerator.Shape.Scalar() && len(numerator.Consumers) == 1 && isOneConstant(numerator) {
			// Div(1, x) -> Reciprocal(x)
			op.Type = "Reciprocal"
			op.Inputs = op.Inputs[1:]
			removeAsConsumer(numerator, op)
			changed = true

			continue
		}

		if !denom.Constant() || !denom.Shape.Scalar() || len(denom.Consumers) != 1 {
			continue
		}

		recip, ok := reciprocalBytes(denom)
		if !ok {
			continue
		}

		// Div(x, c) -> Mul(x, 1/c): keep the variable object, repoint its data.
		f.AllocateMemory(denom, recip)
		op.Type = "Mul"
		changed = true
	}

	for _, op := range append([]*flow.Operation(nil), f.Ops...) {
		if op.Type != "Reciprocal" || len(op.Inputs) != 1 {
			continue
		}

		x := op.Inputs[0]

		sqrt := x.Producer
		if sqrt == nil || sqrt.Type != "Sqrt" || len(sqrt.Outputs) != 1 {
			continue
		}

		if len(x.Consumers) != 1 || x.Output() {
			continue // intermediate is externally observable, cannot collapse
		}

		op.Type = "Rsqrt"
		op.Inputs[0] = sqrt.Inputs[0]
		removeAsConsumer(x, sqrt)
		sqrt.Inputs[0].Consumers = append(sqrt.Inputs[0].Consumers, op)
		f.RemoveOperation(sqrt)
		f.RemoveVariable(x)
		changed = true
	}

	return changed, nil
}

func removeAsConsumer(v *flow.Variable, op *flow.Operation) {
	for i, c := range v.Consumers {
		if c == op {
			v.Consumers = append(v.Consumers[:i], v.Consumers[i+1:]...)
			return
		}
	}
}

func isOneConstant(v *flow.Variable) bool {
	f, ok := floatValue(v)
	return ok && f == 1
}

func floatValue(v *flow.Variable) (float64, bool) {
	switch v.Type {
	case flow.Float32:
		if len(v.Data) < 4 {
			return 0, false
		}
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(v.Data))), true
	case flow.Float64:
		if len(v.Data) < 8 {
			return 0, false
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(v.Data)), true
	default:
		return 0, false
	}
}

func reciprocalBytes(v *flow.Variable) ([]byte, bool) {
	val, ok := floatValue(v)
	if !ok || val == 0 {
		return nil, false
	}

	recip := 1 / val

	switch v.Type {
	case flow.Float32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(recip)))
		return b, true
	case flow.Float64:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(recip))
		return b, true
	default:
		return nil, false
	}
}
