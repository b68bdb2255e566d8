package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myelin-ml/myelin/asm"
	"github.com/myelin-ml/myelin/compile"
	"github.com/myelin-ml/myelin/flow"
)

type noopKernel struct {
	op        string
	align     int
	placement compile.Placement
}

func (k *noopKernel) Name() string      { return "noop-" + k.op }
func (k *noopKernel) Operation() string { return k.op }
func (k *noopKernel) Supports(*compile.Step) bool { return true }

func (k *noopKernel) Adjust(s *compile.Step) error {
	for _, out := range s.Outputs {
		out.SetMinAlign(k.align)
		out.Placement = k.placement
	}

	for _, in := range s.Inputs {
		if in.Placement == compile.Nowhere {
			in.Placement = k.placement
		}
	}

	return nil
}

func (k *noopKernel) Generate(*compile.Step, *asm.Assembler) error { return nil }
func (k *noopKernel) Complexity(*compile.Step) int64               { return 1 }
func (k *noopKernel) Location() compile.Placement                  { return k.placement }

func buildChain(t *testing.T) *compile.Network {
	t.Helper()

	f := flow.New()

	a := f.NewVariable("a", flow.Float32, flow.NewShape(8))
	b := f.NewVariable("b", flow.Float32, flow.NewShape(8))
	tmp := f.NewVariable("tmp", flow.Float32, flow.NewShape(8))
	out := f.NewVariable("out", flow.Float32, flow.NewShape(8))

	add := f.NewOperation("add", "Add")
	f.AddInput(add, a)
	f.AddInput(add, b)
	f.AddOutput(add, tmp)

	neg := f.NewOperation("neg", "Neg")
	f.AddInput(neg, tmp)
	f.AddOutput(neg, out)
	f.MarkOutput(out)

	lib := compile.NewLibrary()
	lib.Register(&noopKernel{op: "Add", align: 32, placement: compile.Host})
	lib.Register(&noopKernel{op: "Neg", align: 16, placement: compile.Host})

	n, err := compile.BuildNetwork(f, lib, false)
	require.NoError(t, err)

	return n
}

func TestPlanAssignsDistinctOffsets(t *testing.T) {
	n := buildChain(t)

	require.NoError(t, Plan(n))

	cell := n.Cells[0]

	tmp := cell.Tensor("tmp")
	out := cell.Tensor("out")

	require.NotNil(t, tmp)
	require.NotNil(t, out)

	assert.True(t, tmp.Planned())
	assert.True(t, out.Planned())
	assert.NotEqual(t, tmp.Offset, out.Offset)
	assert.Equal(t, int64(0), tmp.Offset%32, "tmp must respect its 32-byte alignment request")
	assert.Greater(t, cell.InstanceSize, int64(0))
}

func TestPlanReusesStorageForSharedTensor(t *testing.T) {
	n := buildChain(t)

	cell := n.Cells[0]
	tmp := cell.Tensor("tmp")
	out := cell.Tensor("out")

	out.Shared = tmp

	require.NoError(t, Plan(n))

	assert.Equal(t, tmp.Offset, out.Offset)
}
