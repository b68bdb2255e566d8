package kernel

import (
	"tlog.app/go/errors"

	"github.com/myelin-ml/myelin/asm"
	"github.com/myelin-ml/myelin/compile"
)

// MatMulKernel is a reference, unoptimized matrix multiply: it makes
// no attempt at tiling or vectorization, it only enforces the shape
// and order constraints a real kernel would need and emits a single
// fused instruction standing in for the whole reduction.
type MatMulKernel struct{}

func (MatMulKernel) Name() string      { return "GenericMatMul" }
func (MatMulKernel) Operation() string { return "MatMul" }

func (MatMulKernel) Supports(step *compile.Step) bool {
	if len(step.Inputs) != 2 || len(step.Outputs) != 1 {
		return false
	}

	a, b, c := step.Inputs[0], step.Inputs[1], step.Outputs[0]

	return a.Shape.Rank() >= 2 && b.Shape.Rank() >= 2 && c.Shape.Rank() >= 2 && a.Type == b.Type && a.Type == c.Type
}

func (MatMulKernel) Adjust(step *compile.Step) error {
	a, b, c := step.Inputs[0], step.Inputs[1], step.Outputs[0]

	k := a.Shape.Dim(a.Shape.Rank() - 1)
	if b.Shape.Dim(b.Shape.Rank()-2) != k {
		return errors.New("step %s: inner dimensions %v and %v don't agree", step.Name, a.Shape, b.Shape)
	}

	a.RequireOrder(compile.RowMajor)
	b.RequireOrder(compile.RowMajor)
	c.RequireOrder(compile.RowMajor)

	a.SetMinAlign(32)
	b.SetMinAlign(32)
	c.SetMinAlign(32)

	return nil
}

func (MatMulKernel) Generate(step *compile.Step, masm *asm.Assembler) error {
	base := masm.LoadInstancePtr()

	a := masm.Load(base, step.Inputs[0].Offset)
	b := masm.Load(base, step.Inputs[1].Offset)

	r := masm.BinOp("MatMul", a, b)

	masm.Store(base, step.Outputs[0].Offset, r)

	return nil
}

func (MatMulKernel) Complexity(step *compile.Step) int64 {
	a, b := step.Inputs[0], step.Inputs[1]
	m := a.Shape.Dim(a.Shape.Rank() - 2)
	k := a.Shape.Dim(a.Shape.Rank() - 1)
	n := b.Shape.Dim(b.Shape.Rank() - 1)

	return int64(m) * int64(k) * int64(n)
}

func (MatMulKernel) Location() compile.Placement { return compile.Host }
