package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVarStringUsesSigil(t *testing.T) {
	e := New()

	assert.Equal(t, "%3", e.Var(Input, 3).String())
	assert.Equal(t, "#1", e.Var(Const, 1).String())
	assert.Equal(t, "@0", e.Var(Output, 0).String())
	assert.Equal(t, "$2", e.Var(Temp, 2).String())
	assert.Equal(t, "_0", e.Var(Number, 0).String())
}

func TestVarIsInterned(t *testing.T) {
	e := New()

	a := e.Var(Input, 0)
	b := e.Var(Input, 0)

	assert.Same(t, a, b)
}

func TestNewTempAllocatesDistinctIDs(t *testing.T) {
	e := New()

	a := e.NewTemp()
	b := e.NewTemp()

	assert.NotEqual(t, a.ID, b.ID)
}

func TestEmitWiresProducerConsumer(t *testing.T) {
	e := New()

	in0, in1 := e.Var(Input, 0), e.Var(Input, 1)
	out := e.Var(Output, 0)

	op := e.Emit(Add, out, in0, in1)

	assert.Equal(t, op, out.Producer)
	assert.Contains(t, in0.Consumers, op)
	assert.Contains(t, in1.Consumers, op)
}

func TestInputsOutputsConstsAreSortedByID(t *testing.T) {
	e := New()

	e.Var(Input, 2)
	e.Var(Input, 0)
	e.Var(Input, 1)

	ids := []int{}
	for _, v := range e.Inputs() {
		ids = append(ids, v.ID)
	}

	assert.Equal(t, []int{0, 1, 2}, ids)
}

func TestOpTypeRoundTripsThroughName(t *testing.T) {
	for _, op := range []OpType{Add, Sub, MulAdd132, Sum, Not} {
		name := op.String()

		parsed, ok := ParseOpType(name)
		assert.True(t, ok, "ParseOpType(%q)", name)
		assert.Equal(t, op, parsed)
	}
}

func TestReductionOps(t *testing.T) {
	assert.True(t, Sum.Reduction())
	assert.False(t, Add.Reduction())
}

func TestCommutativeOps(t *testing.T) {
	assert.True(t, Add.Commutative())
	assert.False(t, Sub.Commutative())
}

func TestInlinedRequiresSingleConsumer(t *testing.T) {
	e := New()

	tmp := e.NewTemp()
	out0, out1 := e.Var(Output, 0), e.Var(Output, 1)

	e.Emit(Mul, tmp, e.Var(Input, 0), e.Var(Input, 1))
	e.Emit(Add, out0, tmp, e.Var(Input, 2))

	assert.True(t, tmp.Inlined())

	e.Emit(Sub, out1, tmp, e.Var(Input, 3))
	assert.False(t, tmp.Inlined())
}
