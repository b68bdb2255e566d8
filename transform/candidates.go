package transform

import (
	"tlog.app/go/errors"

	"github.com/myelin-ml/myelin/expr"
	"github.com/myelin-ml/myelin/flow"
)

// elementwiseOps maps a raw flow op type to its Expression IR
// equivalent; every entry here is, by definition, a fusion candidate
// when it carries no "strict" attribute.
var elementwiseOps = map[string]expr.OpType{
	"Add": expr.Add, "Sub": expr.Sub, "Mul": expr.Mul, "Div": expr.Div,
	"Min": expr.Min, "Max": expr.Max,
	"Relu": expr.Relu, "Log": expr.Log, "Exp": expr.Exp,
	"Sigmoid": expr.Sigmoid, "Tanh": expr.Tanh,
	"Sqrt": expr.Sqrt, "Rsqrt": expr.Rsqrt, "Reciprocal": expr.Reciprocal,
	"Neg": expr.Neg, "Floor": expr.Floor, "CvtFloatInt": expr.CvtFloatInt,
	"Equal": expr.Equal, "NotEqual": expr.NotEqual, "Less": expr.Less,
	"LessEqual": expr.LessEqual, "Greater": expr.Greater, "GreaterEqual": expr.GreaterEqual,
	"And": expr.And, "Or": expr.Or, "Not": expr.Not, "AndNot": expr.AndNot, "Xor": expr.Xor,
	"Sum": expr.Sum, "Product": expr.Product, "MaxReduce": expr.MaxReduce, "MinReduce": expr.MinReduce,
}

// isCandidate reports whether op is eligible for expression fusion: its
// type is element-wise arithmetic/logical/transcendental (or it is
// already a fused Calculate/Assign), and it does not carry "strict".
func isCandidate(op *flow.Operation) bool {
	if op.Attr("strict") == "true" {
		return false
	}

	if op.Type == "Calculate" || op.Type == "Assign" {
		return true
	}

	_, ok := elementwiseOps[op.Type]
	return ok
}

// recipe is the parsed Expression for one flow operation together with
// the bidirectional mapping between its expr.Var operands and the flow
// Variables they came from.
type recipe struct {
	expr   *expr.Expression
	varOf  map[*flow.Variable]*expr.Var
	flowOf map[*expr.Var]*flow.Variable
}

// recipeOf builds (or parses) the Expression IR for op. Already-fused
// ops parse their stored "expr" attribute; raw candidate ops get a
// synthesized single-op expression, segregating constant-data inputs
// into the Const ('#') numbering space from the rest ('%').
func recipeOf(op *flow.Operation) (*recipe, error) {
	if op.Type == "Calculate" || op.Type == "Assign" {
		return parseRecipe(op)
	}

	t, ok := elementwiseOps[op.Type]
	if !ok {
		return nil, errors.New("op %s: type %s is not a fusion candidate", op.Name, op.Type)
	}

	e := expr.New()
	r := &recipe{expr: e, varOf: map[*flow.Variable]*expr.Var{}, flowOf: map[*expr.Var]*flow.Variable{}}

	inCount, constCount := 0, 0

	args := make([]*expr.Var, len(op.Inputs))

	for i, v := range op.Inputs {
		var ev *expr.Var

		if v.Constant() {
			ev = e.Var(expr.Const, constCount)
			constCount++
		} else {
			ev = e.Var(expr.Input, inCount)
			inCount++
		}

		r.varOf[v] = ev
		r.flowOf[ev] = v
		args[i] = ev
	}

	if len(op.Outputs) != 1 {
		return nil, errors.New("op %s: fusion candidates must have exactly one output, got %d", op.Name, len(op.Outputs))
	}

	out := op.Outputs[0]
	eout := e.Var(expr.Output, 0)
	r.varOf[out] = eout
	r.flowOf[eout] = out

	e.Emit(t, eout, args...)

	return r, nil
}

func parseRecipe(op *flow.Operation) (*recipe, error) {
	text := op.Attr("expr")

	e, err := expr.Parse(text)
	if err != nil {
		return nil, errors.Wrap(err, "op %s", op.Name)
	}

	r := &recipe{expr: e, varOf: map[*flow.Variable]*expr.Var{}, flowOf: map[*expr.Var]*flow.Variable{}}

	inVars, constVars := e.Inputs(), e.Consts()
	outVars := e.Outputs()

	inCount, constCount := 0, 0

	for _, v := range op.Inputs {
		var ev *expr.Var

		if v.Constant() {
			if constCount >= len(constVars) {
				return nil, errors.New("op %s: recipe references fewer const inputs than op has", op.Name)
			}

			ev = constVars[constCount]
			constCount++
		} else {
			if inCount >= len(inVars) {
				return nil, errors.New("op %s: recipe references fewer inputs than op has", op.Name)
			}

			ev = inVars[inCount]
			inCount++
		}

		r.varOf[v] = ev
		r.flowOf[ev] = v
	}

	for i, v := range op.Outputs {
		if i >= len(outVars) {
			return nil, errors.New("op %s: recipe has fewer outputs than op", op.Name)
		}

		r.varOf[v] = outVars[i]
		r.flowOf[outVars[i]] = v
	}

	return r, nil
}
