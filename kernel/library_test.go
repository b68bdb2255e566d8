package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myelin-ml/myelin/asm"
	"github.com/myelin-ml/myelin/compile"
	"github.com/myelin-ml/myelin/flow"
)

func TestDefaultLibrarySelectsAddKernel(t *testing.T) {
	f := flow.New()

	a := f.NewVariable("a", flow.Float32, flow.NewShape(4))
	b := f.NewVariable("b", flow.Float32, flow.NewShape(4))
	c := f.NewVariable("c", flow.Float32, flow.NewShape(4))

	op := f.NewOperation("add", "Add")
	f.AddInput(op, a)
	f.AddInput(op, b)
	f.AddOutput(op, c)
	f.MarkOutput(c)

	n, err := compile.BuildNetwork(f, DefaultLibrary(), false)
	require.NoError(t, err)

	step := n.Cells[0].Steps[0]
	require.NotNil(t, step.Kernel)
	assert.Equal(t, "Expression", step.Kernel.Name())
	assert.Equal(t, "@0=Add(%0,%1)", step.Attr("expr"))
}

func TestExpressionKernelGeneratesLoadComputeStore(t *testing.T) {
	f := flow.New()

	a := f.NewVariable("a", flow.Float32, flow.NewShape(4))
	b := f.NewVariable("b", flow.Float32, flow.NewShape(4))
	c := f.NewVariable("c", flow.Float32, flow.NewShape(4))

	op := f.NewOperation("add", "Add")
	f.AddInput(op, a)
	f.AddInput(op, b)
	f.AddOutput(op, c)
	f.MarkOutput(c)

	n, err := compile.BuildNetwork(f, DefaultLibrary(), false)
	require.NoError(t, err)

	cell := n.Cells[0]
	cell.Tensor("a").Offset = 0
	cell.Tensor("b").Offset = 16
	cell.Tensor("c").Offset = 32

	masm := asm.New("add", false)

	step := cell.Steps[0]
	require.NoError(t, step.Kernel.Generate(step, masm))

	listing := masm.Program().String()
	assert.Contains(t, listing, "INSTPTR")
	assert.Contains(t, listing, "LOAD")
	assert.Contains(t, listing, "Add")
	assert.Contains(t, listing, "STORE")
}

func TestMatMulKernelRejectsMismatchedInnerDims(t *testing.T) {
	f := flow.New()

	a := f.NewVariable("a", flow.Float32, flow.NewShape(2, 3))
	b := f.NewVariable("b", flow.Float32, flow.NewShape(4, 5))
	c := f.NewVariable("c", flow.Float32, flow.NewShape(2, 5))

	op := f.NewOperation("mm", "MatMul")
	f.AddInput(op, a)
	f.AddInput(op, b)
	f.AddOutput(op, c)

	_, err := compile.BuildNetwork(f, DefaultLibrary(), false)
	require.Error(t, err)
}
