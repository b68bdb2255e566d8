package kernel

import (
	"github.com/myelin-ml/myelin/asm"
	"github.com/myelin-ml/myelin/compile"
)

// ReduceKernel serves the standalone (unfused) reduction op types: a
// fused Calculate may also end in a reduction, but a reduction left
// on its own as a Sum/Product/MaxReduce/MinReduce flow op still needs
// a kernel.
type ReduceKernel struct {
	op string
}

func NewReduceKernel(op string) *ReduceKernel { return &ReduceKernel{op: op} }

func (k *ReduceKernel) Name() string      { return "GenericReduce" }
func (k *ReduceKernel) Operation() string { return k.op }

func (k *ReduceKernel) Supports(step *compile.Step) bool {
	return len(step.Inputs) == 1 && len(step.Outputs) == 1
}

func (k *ReduceKernel) Adjust(step *compile.Step) error {
	step.Outputs[0].SetMinAlign(16)
	return nil
}

func (k *ReduceKernel) Generate(step *compile.Step, masm *asm.Assembler) error {
	base := masm.LoadInstancePtr()

	in := masm.Load(base, step.Inputs[0].Offset)
	r := masm.UnOp(step.OpType, in)
	masm.Store(base, step.Outputs[0].Offset, r)

	return nil
}

func (k *ReduceKernel) Complexity(step *compile.Step) int64 {
	return int64(step.Inputs[0].Shape.Elements())
}

func (k *ReduceKernel) Location() compile.Placement { return compile.Host }
