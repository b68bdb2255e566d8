package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myelin-ml/myelin/flow"
)

func TestIsCandidateRecognizesElementwiseOps(t *testing.T) {
	f := flow.New()

	op := f.NewOperation("add", "Add")
	assert.True(t, isCandidate(op))

	op2 := f.NewOperation("calc", "Calculate")
	assert.True(t, isCandidate(op2))

	op3 := f.NewOperation("matmul", "MatMul")
	assert.False(t, isCandidate(op3))
}

func TestIsCandidateRejectsStrictAttr(t *testing.T) {
	f := flow.New()

	op := f.NewOperation("add", "Add")
	op.SetAttr("strict", "true")

	assert.False(t, isCandidate(op))
}

func TestRecipeOfSynthesizesSingleOpExpression(t *testing.T) {
	f := flow.New()

	a := f.NewVariable("a", flow.Float32, flow.NewShape(4))
	c := f.NewVariable("c", flow.Float32, flow.NewShape(1))
	f.AllocateMemory(c, []byte{0, 0, 128, 63})
	out := f.NewVariable("out", flow.Float32, flow.NewShape(4))

	op := f.NewOperation("add", "Add")
	f.AddInput(op, a)
	f.AddInput(op, c)
	f.AddOutput(op, out)

	r, err := recipeOf(op)
	require.NoError(t, err)

	require.Len(t, r.expr.Ops, 1)
	assert.Equal(t, "%0", r.varOf[a].String())
	assert.Equal(t, "#0", r.varOf[c].String())
	assert.Equal(t, a, r.flowOf[r.varOf[a]])
	assert.Equal(t, out, r.flowOf[r.varOf[out]])
}

func TestRecipeOfRejectsMultiOutput(t *testing.T) {
	f := flow.New()

	a := f.NewVariable("a", flow.Float32, flow.NewShape(4))
	o1 := f.NewVariable("o1", flow.Float32, flow.NewShape(4))
	o2 := f.NewVariable("o2", flow.Float32, flow.NewShape(4))

	op := f.NewOperation("add", "Add")
	f.AddInput(op, a)
	f.AddOutput(op, o1)
	f.AddOutput(op, o2)

	_, err := recipeOf(op)
	assert.Error(t, err)
}

func TestParseRecipeRoundTripsThroughAlreadyFusedOp(t *testing.T) {
	f := flow.New()

	a := f.NewVariable("a", flow.Float32, flow.NewShape(4))
	b := f.NewVariable("b", flow.Float32, flow.NewShape(4))
	out := f.NewVariable("out", flow.Float32, flow.NewShape(4))

	op := f.NewOperation("calc", "Calculate")
	f.AddInput(op, a)
	f.AddInput(op, b)
	f.AddOutput(op, out)
	op.SetAttr("expr", "@0=Add(%0,%1)")

	r, err := recipeOf(op)
	require.NoError(t, err)

	assert.Equal(t, a, r.flowOf[r.varOf[a]])
	assert.Equal(t, b, r.flowOf[r.varOf[b]])
	assert.Equal(t, out, r.flowOf[r.varOf[out]])
}
