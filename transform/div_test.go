package transform

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myelin-ml/myelin/flow"
)

func float32Bytes(v float32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	return b
}

func TestDivByConstantBecomesMulByReciprocal(t *testing.T) {
	f := flow.New()

	x := f.NewVariable("x", flow.Float32, flow.NewShape(4))
	c := f.NewVariable("c", flow.Float32, flow.NewShape(1))
	f.AllocateMemory(c, float32Bytes(2))
	out := f.NewVariable("out", flow.Float32, flow.NewShape(4))

	div := f.NewOperation("div", "Div")
	f.AddInput(div, x)
	f.AddInput(div, c)
	f.AddOutput(div, out)

	changed, err := DivTransformer{}.Apply(context.Background(), f)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "Mul", div.Type)

	got := math.Float32frombits(binary.LittleEndian.Uint32(c.Data))
	assert.InDelta(t, 0.5, got, 1e-9)
}

func TestDivOneOverXBecomesReciprocal(t *testing.T) {
	f := flow.New()

	one := f.NewVariable("one", flow.Float32, flow.NewShape(1))
	f.AllocateMemory(one, float32Bytes(1))
	x := f.NewVariable("x", flow.Float32, flow.NewShape(4))
	out := f.NewVariable("out", flow.Float32, flow.NewShape(4))

	div := f.NewOperation("div", "Div")
	f.AddInput(div, one)
	f.AddInput(div, x)
	f.AddOutput(div, out)

	changed, err := DivTransformer{}.Apply(context.Background(), f)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "Reciprocal", div.Type)
	assert.Equal(t, []*flow.Variable{x}, div.Inputs)
}

func TestReciprocalOfSqrtBecomesRsqrt(t *testing.T) {
	f := flow.New()

	x := f.NewVariable("x", flow.Float32, flow.NewShape(4))
	sqrtOut := f.NewVariable("s", flow.Float32, flow.NewShape(4))
	out := f.NewVariable("out", flow.Float32, flow.NewShape(4))

	sqrt := f.NewOperation("sqrt", "Sqrt")
	f.AddInput(sqrt, x)
	f.AddOutput(sqrt, sqrtOut)

	recip := f.NewOperation("recip", "Reciprocal")
	f.AddInput(recip, sqrtOut)
	f.AddOutput(recip, out)

	changed, err := DivTransformer{}.Apply(context.Background(), f)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "Rsqrt", recip.Type)
	assert.Equal(t, []*flow.Variable{x}, recip.Inputs)
	assert.NotContains(t, f.Ops, sqrt)
}

func TestReciprocalOfSqrtKeptWhenIntermediateIsOutput(t *testing.T) {
	f := flow.New()

	x := f.NewVariable("x", flow.Float32, flow.NewShape(4))
	sqrtOut := f.NewVariable("s", flow.Float32, flow.NewShape(4))
	out := f.NewVariable("out", flow.Float32, flow.NewShape(4))

	sqrt := f.NewOperation("sqrt", "Sqrt")
	f.AddInput(sqrt, x)
	f.AddOutput(sqrt, sqrtOut)
	f.MarkOutput(sqrtOut)

	recip := f.NewOperation("recip", "Reciprocal")
	f.AddInput(recip, sqrtOut)
	f.AddOutput(recip, out)

	changed, err := DivTransformer{}.Apply(context.Background(), f)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "Reciprocal", recip.Type)
}
