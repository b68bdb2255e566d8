// Package transform implements the flow transformer pipeline: a
// fixpoint driver plus the concrete rewriters (algebraic
// simplification, expression fusion, dead-input pruning) that turn a
// raw flow graph into one dominated by fused Calculate/Assign
// operations.
package transform

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/myelin-ml/myelin/flow"
)

// Transformer rewrites a flow graph in place and reports whether it
// changed anything. A transformer that cannot prove a rewrite sound
// must leave the flow untouched and report false; it must never panic
// on an unrecognized op.
type Transformer interface {
	Name() string
	Apply(ctx context.Context, f *flow.Flow) (changed bool, err error)
}

// Pipeline runs a fixed list of transformers to a fixpoint.
type Pipeline struct {
	transformers []Transformer

	// MaxIterations bounds the outer fixpoint loop as a defense against
	// a buggy oscillating transformer; 0 means DefaultMaxIterations.
	MaxIterations int
}

const DefaultMaxIterations = 10000

// NewPipeline builds a pipeline from the given transformers, applied in
// the order given on every pass.
func NewPipeline(ts ...Transformer) *Pipeline {
	return &Pipeline{transformers: ts}
}

type denyLister interface {
	deny(a, b string)
}

// Deny forbids ExpressionTransformer from fusing op type a into op
// type b (in either role), supplementing the per-op nomerge/strict
// attributes with a pipeline-wide policy. A no-op if the pipeline has
// no ExpressionTransformer registered.
func (p *Pipeline) Deny(a, b string) {
	for _, t := range p.transformers {
		if d, ok := t.(denyLister); ok {
			d.deny(a, b)
		}
	}
}

// Apply repeatedly runs every transformer in order; after a full pass
// in which none of them reported a change, it returns. Transformers
// mutate the flow in place.
func (p *Pipeline) Apply(ctx context.Context, f *flow.Flow) error {
	max := p.MaxIterations
	if max == 0 {
		max = DefaultMaxIterations
	}

	for iter := 0; iter < max; iter++ {
		changedAny := false

		for _, t := range p.transformers {
			changed, err := t.Apply(ctx, f)
			if err != nil {
				return errors.Wrap(err, "transform %s", t.Name())
			}

			if changed {
				changedAny = true
				tlog.SpanFromContext(ctx).Printw("transform applied", "transformer", t.Name(), "pass", iter)
			}
		}

		if !changedAny {
			return nil
		}
	}

	return errors.New("transformer pipeline: exceeded %d iterations without reaching a fixpoint", max)
}
