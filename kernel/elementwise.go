package kernel

import (
	"fmt"

	"tlog.app/go/errors"

	"github.com/myelin-ml/myelin/asm"
	"github.com/myelin-ml/myelin/compile"
	"github.com/myelin-ml/myelin/kernel/generator"
)

// ExpressionKernel generates code for a fused Calculate/Assign step by
// running its "expr" recipe through the generator package. Every
// un-fused element-wise op (the fusion pass normally absorbs these,
// but a step may legitimately reach code generation unfused, e.g. a
// single op with "nomerge" set) is served by synthesizing a one-op
// recipe on the fly in Adjust.
type ExpressionKernel struct {
	op string
}

// elementwiseArity lists the raw op types ExpressionKernel can
// synthesize a recipe for, keyed by argument count.
var elementwiseArity = map[string]int{
	"Add": 2, "Sub": 2, "Mul": 2, "Div": 2, "Min": 2, "Max": 2,
	"Relu": 1, "Log": 1, "Exp": 1, "Sigmoid": 1, "Tanh": 1,
	"Sqrt": 1, "Rsqrt": 1, "Reciprocal": 1, "Neg": 1, "Floor": 1, "CvtFloatInt": 1,
	"Equal": 2, "NotEqual": 2, "Less": 2, "LessEqual": 2, "Greater": 2, "GreaterEqual": 2,
	"And": 2, "Or": 2, "Not": 1, "AndNot": 2, "Xor": 2,
}

func NewExpressionKernel(op string) *ExpressionKernel { return &ExpressionKernel{op: op} }

func (k *ExpressionKernel) Name() string      { return "Expression" }
func (k *ExpressionKernel) Operation() string { return k.op }

func (k *ExpressionKernel) Supports(step *compile.Step) bool {
	if step.OpType == "Calculate" || step.OpType == "Assign" {
		return step.Attr("expr") != ""
	}

	_, ok := elementwiseArity[step.OpType]
	return ok
}

func (k *ExpressionKernel) Adjust(step *compile.Step) error {
	if step.OpType == "Calculate" || step.OpType == "Assign" {
		return nil // recipe is already attached by the fusion pass
	}

	n, ok := elementwiseArity[step.OpType]
	if !ok {
		return errors.New("step %s: %s is not an expression op", step.Name, step.OpType)
	}

	if len(step.Inputs) != n {
		return errors.New("step %s: %s wants %d inputs, got %d", step.Name, step.OpType, n, len(step.Inputs))
	}

	if len(step.Outputs) != 1 {
		return errors.New("step %s: %s must have exactly one output", step.Name, step.OpType)
	}

	step.SetAttr("expr", synthesizeRecipe(step))

	return nil
}

func synthesizeRecipe(step *compile.Step) string {
	args := make([]string, len(step.Inputs))

	inIdx, constIdx := 0, 0

	for i, t := range step.Inputs {
		if t.Constant {
			args[i] = fmt.Sprintf("#%d", constIdx)
			constIdx++
		} else {
			args[i] = fmt.Sprintf("%%%d", inIdx)
			inIdx++
		}
	}

	call := step.OpType + "("

	for i, a := range args {
		if i > 0 {
			call += ","
		}

		call += a
	}

	call += ")"

	return "@0=" + call
}

func (k *ExpressionKernel) Generate(step *compile.Step, masm *asm.Assembler) error {
	return generator.Generate(step, masm)
}

func (k *ExpressionKernel) Complexity(step *compile.Step) int64 {
	return int64(step.Outputs[0].Shape.Elements())
}

func (k *ExpressionKernel) Location() compile.Placement { return compile.Host }
