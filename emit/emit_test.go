package emit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myelin-ml/myelin/compile"
	"github.com/myelin-ml/myelin/flow"
	"github.com/myelin-ml/myelin/kernel"
	"github.com/myelin-ml/myelin/plan"
	"github.com/myelin-ml/myelin/runtime"
)

func buildAddNetwork(t *testing.T) *compile.Network {
	t.Helper()

	f := flow.New()

	a := f.NewVariable("a", flow.Float32, flow.NewShape(4))
	b := f.NewVariable("b", flow.Float32, flow.NewShape(4))
	c := f.NewVariable("c", flow.Float32, flow.NewShape(4))

	op := f.NewOperation("add", "Add")
	f.AddInput(op, a)
	f.AddInput(op, b)
	f.AddOutput(op, c)
	f.MarkOutput(c)

	n, err := compile.BuildNetwork(f, kernel.DefaultLibrary(), true)
	require.NoError(t, err)
	require.NoError(t, plan.Plan(n))

	return n
}

func TestEmitProducesLoadComputeStoreListing(t *testing.T) {
	n := buildAddNetwork(t)

	out, err := Emit(n, runtime.NewHost())
	require.NoError(t, err)

	cell, ok := out["main"]
	require.True(t, ok)

	listing := cell.Main.String()
	assert.Contains(t, listing, "LOAD")
	assert.Contains(t, listing, "Add")
	assert.Contains(t, listing, "STORE")
	assert.Empty(t, cell.Tasks)
}

func TestEmitAsyncStepGetsTrampoline(t *testing.T) {
	n := buildAddNetwork(t)

	n.Cells[0].Steps[0].Async = true
	n.Cells[0].Steps[0].Task = 1

	out, err := Emit(n, runtime.NewHost())
	require.NoError(t, err)

	cell := out["main"]

	assert.Contains(t, cell.Main.String(), "TASK.START\t#1")
	assert.Contains(t, cell.Main.String(), "TASK.WAIT\t#1")
	require.Contains(t, cell.Tasks, 1)
	assert.Contains(t, cell.Tasks[1].String(), "STORE")
}
