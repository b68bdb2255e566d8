package compile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myelin-ml/myelin/asm"
	"github.com/myelin-ml/myelin/flow"
)

type fakeKernel struct {
	op   string
	name string
}

func (k *fakeKernel) Name() string               { return k.name }
func (k *fakeKernel) Operation() string          { return k.op }
func (k *fakeKernel) Supports(*Step) bool        { return true }
func (k *fakeKernel) Adjust(s *Step) error       { s.Outputs[0].SetMinAlign(32); return nil }
func (k *fakeKernel) Generate(*Step, *asm.Assembler) error { return nil }
func (k *fakeKernel) Complexity(*Step) int64     { return 1 }
func (k *fakeKernel) Location() Placement        { return Host }

func testLibrary() *Library {
	lib := NewLibrary()
	lib.Register(&fakeKernel{op: "Add", name: "GenericAdd"})
	lib.Register(&fakeKernel{op: "MatMul", name: "GenericMatMul"})

	return lib
}

func TestBuildNetworkSingleCell(t *testing.T) {
	f := flow.New()

	a := f.NewVariable("a", flow.Float32, flow.NewShape(4))
	b := f.NewVariable("b", flow.Float32, flow.NewShape(4))
	c := f.NewVariable("c", flow.Float32, flow.NewShape(4))

	op := f.NewOperation("add1", "Add")
	f.AddInput(op, a)
	f.AddInput(op, b)
	f.AddOutput(op, c)
	f.MarkOutput(c)

	n, err := BuildNetwork(f, testLibrary(), false)
	require.NoError(t, err)
	require.Len(t, n.Cells, 1)

	cell := n.Cells[0]
	assert.Equal(t, "main", cell.Name)
	require.Len(t, cell.Steps, 1)

	step := cell.Steps[0]
	assert.Equal(t, "Add", step.OpType)
	require.NotNil(t, step.Kernel)
	assert.Equal(t, "GenericAdd", step.Kernel.Name())

	require.Len(t, step.Outputs, 1)
	assert.Equal(t, 32, step.Outputs[0].MinAlign)
	assert.Equal(t, Host, step.Outputs[0].Placement)
}

func TestBuildNetworkPartitionsByCellAttr(t *testing.T) {
	f := flow.New()

	a := f.NewVariable("a", flow.Float32, flow.NewShape(1))
	b := f.NewVariable("b", flow.Float32, flow.NewShape(1))

	op1 := f.NewOperation("step1", "Add")
	op1.SetAttr("cell", "recurrent")
	f.AddInput(op1, a)
	f.AddOutput(op1, b)

	op2 := f.NewOperation("step2", "Add")
	f.AddInput(op2, b)

	out := f.NewVariable("out", flow.Float32, flow.NewShape(1))
	f.AddOutput(op2, out)

	n, err := BuildNetwork(f, testLibrary(), false)
	require.NoError(t, err)
	require.Len(t, n.Cells, 2)

	assert.Equal(t, "recurrent", n.Cells[0].Name)
	assert.Equal(t, "main", n.Cells[1].Name)

	// b is shared across both cells; the network-level tensor is the
	// same object in each cell's local list.
	var bTensor *Tensor
	for _, t := range n.Cells[0].Tensors {
		if t.Name == "b" {
			bTensor = t
		}
	}
	require.NotNil(t, bTensor)

	found := false
	for _, t := range n.Cells[1].Tensors {
		if t == bTensor {
			found = true
		}
	}
	assert.True(t, found, "tensor b should be shared by identity across cells")
}

func TestBuildNetworkMissingKernel(t *testing.T) {
	f := flow.New()

	a := f.NewVariable("a", flow.Float32, flow.NewShape(1))
	op := f.NewOperation("mystery", "DoesNotExist")
	f.AddOutput(op, a)

	_, err := BuildNetwork(f, testLibrary(), false)
	require.Error(t, err)
}
