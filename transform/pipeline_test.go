package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myelin-ml/myelin/flow"
)

type countingTransformer struct {
	name  string
	left  int
	calls int
}

func (c *countingTransformer) Name() string { return c.name }

func (c *countingTransformer) Apply(ctx context.Context, f *flow.Flow) (bool, error) {
	c.calls++

	if c.left <= 0 {
		return false, nil
	}

	c.left--

	return true, nil
}

func TestPipelineRunsToFixpoint(t *testing.T) {
	ct := &countingTransformer{name: "counter", left: 3}
	p := NewPipeline(ct)

	require.NoError(t, p.Apply(context.Background(), flow.New()))

	assert.Equal(t, 4, ct.calls) // 3 changed passes + 1 confirming pass
}

func TestPipelineRunsTransformersInOrder(t *testing.T) {
	var order []string

	record := func(name string) *recordingTransformer {
		return &recordingTransformer{name: name, order: &order}
	}

	p := NewPipeline(record("first"), record("second"))

	require.NoError(t, p.Apply(context.Background(), flow.New()))
	assert.Equal(t, []string{"first", "second"}, order)
}

type recordingTransformer struct {
	name  string
	order *[]string
}

func (r *recordingTransformer) Name() string { return r.name }

func (r *recordingTransformer) Apply(ctx context.Context, f *flow.Flow) (bool, error) {
	*r.order = append(*r.order, r.name)
	return false, nil
}

func TestPipelineExceedingMaxIterationsErrors(t *testing.T) {
	ct := &countingTransformer{name: "counter", left: 1000}
	p := NewPipeline(ct)
	p.MaxIterations = 2

	err := p.Apply(context.Background(), flow.New())
	assert.Error(t, err)
}

func TestDenyIsNoOpWithoutExpressionTransformer(t *testing.T) {
	p := NewPipeline(DivTransformer{})
	assert.NotPanics(t, func() { p.Deny("Add", "Mul") })
}

func TestDenyReachesExpressionTransformer(t *testing.T) {
	et := NewExpressionTransformer()
	p := NewPipeline(et)

	p.Deny("Add", "Mul")
	assert.True(t, et.isDenied("Add", "Mul"))
	assert.True(t, et.isDenied("Mul", "Add"))
}
