package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleAssignment(t *testing.T) {
	e, err := Parse("@0=Add(%0,%1)")
	require.NoError(t, err)

	require.Len(t, e.Ops, 1)
	assert.Equal(t, Add, e.Ops[0].Type)
	assert.Equal(t, "@0", e.Ops[0].Result.String())
	assert.Equal(t, []string{"%0", "%1"}, varNames(e.Ops[0].Args))
}

func TestParseBareAssignmentEmitsNop(t *testing.T) {
	e, err := Parse("@0=%0")
	require.NoError(t, err)

	require.Len(t, e.Ops, 1)
	assert.Equal(t, Nop, e.Ops[0].Type)
	assert.False(t, e.Ops[0].NoOp())
}

func TestParseNestedCallInlinesTemp(t *testing.T) {
	e, err := Parse("@0=Add(Mul(%0,%1),%2)")
	require.NoError(t, err)

	require.Len(t, e.Ops, 2)
	assert.Equal(t, Mul, e.Ops[0].Type)
	assert.Equal(t, Add, e.Ops[1].Type)

	tmp := e.Ops[0].Result
	assert.True(t, tmp.Inlined())
}

func TestParseMultipleStatements(t *testing.T) {
	e, err := Parse("$0=Mul(%0,%1);@0=Add($0,%2)")
	require.NoError(t, err)

	require.Len(t, e.Ops, 2)
	assert.Equal(t, Mul, e.Ops[0].Type)
	assert.Equal(t, Add, e.Ops[1].Type)
}

func TestParseRejectsUnknownOp(t *testing.T) {
	_, err := Parse("@0=Bogus(%0)")
	assert.Error(t, err)
}

func TestParseRejectsMissingEquals(t *testing.T) {
	_, err := Parse("@0 Add(%0,%1)")
	assert.Error(t, err)
}

func TestEmitRoundTripsInlinedTemp(t *testing.T) {
	const recipe = "@0=Add(Mul(%0,%1),%2)"

	e, err := Parse(recipe)
	require.NoError(t, err)

	assert.Equal(t, recipe, e.Recipe())
}

func TestEmitKeepsMultiplyConsumedTempSeparate(t *testing.T) {
	const recipe = "$0=Mul(%0,%1);@0=Add($0,%2);@1=Sub($0,%2)"

	e, err := Parse(recipe)
	require.NoError(t, err)

	assert.Equal(t, recipe, e.Recipe())
}

func varNames(vs []*Var) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.String()
	}
	return out
}
