package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myelin-ml/myelin/flow"
)

func TestRemoveUnusedInputsDropsUnreferencedOperand(t *testing.T) {
	f := flow.New()

	a := f.NewVariable("a", flow.Float32, flow.NewShape(4))
	b := f.NewVariable("b", flow.Float32, flow.NewShape(4))
	unused := f.NewVariable("unused", flow.Float32, flow.NewShape(4))
	out := f.NewVariable("out", flow.Float32, flow.NewShape(4))

	op := f.NewOperation("calc", "Calculate")
	f.AddInput(op, a)
	f.AddInput(op, unused)
	f.AddInput(op, b)
	f.AddOutput(op, out)
	op.SetAttr("expr", "@0=Add(%0,%2)")

	changed, err := RemoveUnusedInputs{}.Apply(context.Background(), f)
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Equal(t, []*flow.Variable{a, b}, op.Inputs)
	assert.Equal(t, "@0=Add(%0,%1)", op.Attr("expr"))
	assert.NotContains(t, unused.Consumers, op)
}

func TestRemoveUnusedInputsNoopWhenAllUsed(t *testing.T) {
	f := flow.New()

	a := f.NewVariable("a", flow.Float32, flow.NewShape(4))
	b := f.NewVariable("b", flow.Float32, flow.NewShape(4))
	out := f.NewVariable("out", flow.Float32, flow.NewShape(4))

	op := f.NewOperation("calc", "Calculate")
	f.AddInput(op, a)
	f.AddInput(op, b)
	f.AddOutput(op, out)
	op.SetAttr("expr", "@0=Add(%0,%1)")

	changed, err := RemoveUnusedInputs{}.Apply(context.Background(), f)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, []*flow.Variable{a, b}, op.Inputs)
}

func TestRemoveUnusedInputsIgnoresOpsWithoutRecipe(t *testing.T) {
	f := flow.New()

	a := f.NewVariable("a", flow.Float32, flow.NewShape(4))
	out := f.NewVariable("out", flow.Float32, flow.NewShape(4))

	op := f.NewOperation("add", "Add")
	f.AddInput(op, a)
	f.AddOutput(op, out)

	changed, err := RemoveUnusedInputs{}.Apply(context.Background(), f)
	require.NoError(t, err)
	assert.False(t, changed)
}
