// Package myelin ties the compiler's stages together: a flow graph goes
// through the transformer pipeline, is partitioned into cells and bound
// to kernels, has its tensors planned into instance storage, and is
// finally emitted as per-cell assembly. cmd/myelinc is the only caller
// that needs all four stages in sequence; everything else can depend on
// the stage packages directly.
package myelin

import (
	"context"

	"tlog.app/go/errors"

	"github.com/myelin-ml/myelin/compile"
	"github.com/myelin-ml/myelin/emit"
	"github.com/myelin-ml/myelin/flow"
	"github.com/myelin-ml/myelin/kernel"
	"github.com/myelin-ml/myelin/plan"
	"github.com/myelin-ml/myelin/runtime"
	"github.com/myelin-ml/myelin/transform"
)

// DefaultPipeline returns the standard transformer sequence: algebraic
// simplification first (it creates the most fusion opportunities),
// then expression fusion to a fixpoint, then dead-input pruning.
func DefaultPipeline() *transform.Pipeline {
	return transform.NewPipeline(
		transform.DivTransformer{},
		transform.AddNegToSub{},
		transform.LogicTransformer{},
		transform.NewExpressionTransformer(),
		transform.RemoveUnusedInputs{},
	)
}

// Result is one compiled network: its cell/tensor structure plus the
// per-cell code emitted for it.
type Result struct {
	Network *compile.Network
	Cells   map[string]*emit.Cell
}

// Compile runs f through the default transformer pipeline, partitions
// it into cells against lib, plans tensor storage and emits code for
// every cell against the reference Host runtime. f is mutated in place
// by the pipeline.
func Compile(ctx context.Context, f *flow.Flow, lib *compile.Library) (*Result, error) {
	return CompileFor(ctx, f, lib, runtime.NewHost())
}

// CompileFor is Compile against an explicit runtime, so a step's task
// index only turns into an Async step when rt actually supports
// running one (spec §4.3/§4.5).
func CompileFor(ctx context.Context, f *flow.Flow, lib *compile.Library, rt runtime.Runtime) (*Result, error) {
	if lib == nil {
		lib = kernel.DefaultLibrary()
	}

	if err := DefaultPipeline().Apply(ctx, f); err != nil {
		return nil, errors.Wrap(err, "transform")
	}

	n, err := compile.BuildNetwork(f, lib, rt.SupportsAsync())
	if err != nil {
		return nil, errors.Wrap(err, "build network")
	}

	if err := plan.Plan(n); err != nil {
		return nil, errors.Wrap(err, "plan")
	}

	cells, err := emit.Emit(n, rt)
	if err != nil {
		return nil, errors.Wrap(err, "emit")
	}

	return &Result{Network: n, Cells: cells}, nil
}
