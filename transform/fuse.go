package transform

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/myelin-ml/myelin/expr"
	"github.com/myelin-ml/myelin/flow"
)

// ExpressionTransformer implements the fusion core (spec §4.1):
// assign absorption, pairwise fusion of a producer/consumer pair of
// candidates, and sibling fusion of two candidates sharing a
// non-scalar input. All three phases funnel into the same structural
// merge (fuse), which differs only in how the candidate pair is
// discovered.
type ExpressionTransformer struct {
	deniedTypes map[[2]string]bool
}

// NewExpressionTransformer returns a ready-to-use fusion transformer.
func NewExpressionTransformer() *ExpressionTransformer {
	return &ExpressionTransformer{}
}

func (t *ExpressionTransformer) Name() string { return "ExpressionTransformer" }

func (t *ExpressionTransformer) deny(a, b string) {
	if t.deniedTypes == nil {
		t.deniedTypes = map[[2]string]bool{}
	}

	t.deniedTypes[[2]string{a, b}] = true
	t.deniedTypes[[2]string{b, a}] = true
}

func (t *ExpressionTransformer) isDenied(a, b string) bool { return t.deniedTypes[[2]string{a, b}] }

func (t *ExpressionTransformer) Apply(ctx context.Context, f *flow.Flow) (bool, error) {
	if changed, err := t.absorbAssigns(ctx, f); changed || err != nil {
		return changed, err
	}

	if changed, err := t.pairwiseFusion(ctx, f); changed || err != nil {
		return changed, err
	}

	return t.siblingFusion(ctx, f)
}

// absorbAssigns implements spec §4.1 phase 1: an Assign whose source
// input's producer is a candidate, all of whose outputs flow solely
// into the Assign and are not externally visible, gets merged.
func (t *ExpressionTransformer) absorbAssigns(ctx context.Context, f *flow.Flow) (bool, error) {
	for _, b := range append([]*flow.Operation(nil), f.Ops...) {
		if b.Type != "Assign" || len(b.Inputs) < 2 {
			continue
		}

		for _, src := range b.Inputs[1:] {
			a := src.Producer
			if a == nil || !isCandidate(a) {
				continue
			}

			if !allOutputsSoleConsumer(a, b) {
				continue
			}

			ok, err := t.fuse(ctx, f, a, b)
			if err != nil {
				return false, err
			}

			if ok {
				return true, nil
			}
		}
	}

	return false, nil
}

func allOutputsSoleConsumer(a, b *flow.Operation) bool {
	for _, v := range a.Outputs {
		if v.Output() {
			return false
		}

		if len(v.Consumers) != 1 || v.Consumers[0] != b {
			return false
		}
	}

	return true
}

// pairwiseFusion implements spec §4.1 phase 2: a candidate whose
// producer (for some input) is also a candidate.
func (t *ExpressionTransformer) pairwiseFusion(ctx context.Context, f *flow.Flow) (bool, error) {
	for _, b := range append([]*flow.Operation(nil), f.Ops...) {
		if !isCandidate(b) {
			continue
		}

		for _, v := range b.Inputs {
			a := v.Producer
			if a == nil || a == b || !isCandidate(a) {
				continue
			}

			ok, err := t.fuse(ctx, f, a, b)
			if err != nil {
				return false, err
			}

			if ok {
				return true, nil
			}
		}
	}

	return false, nil
}

// siblingFusion implements spec §4.1 phase 3: two distinct candidates
// both consuming a shared non-scalar variable.
func (t *ExpressionTransformer) siblingFusion(ctx context.Context, f *flow.Flow) (bool, error) {
	for _, v := range f.Vars {
		if v.Shape.Scalar() {
			continue
		}

		for i := 0; i < len(v.Consumers); i++ {
			c1 := v.Consumers[i]
			if !isCandidate(c1) {
				continue
			}

			for j := i + 1; j < len(v.Consumers); j++ {
				c2 := v.Consumers[j]
				if !isCandidate(c2) || c2 == c1 {
					continue
				}

				if dependsOn(c1, c2) || dependsOn(c2, c1) {
					continue // indirect dependency would create a cycle
				}

				ok, err := t.fuse(ctx, f, c1, c2)
				if err != nil {
					return false, err
				}

				if ok {
					return true, nil
				}
			}
		}
	}

	return false, nil
}

// dependsOn reports whether op b is reachable from op a by following
// output->consumer edges, i.e. a (indirectly) produces something b
// consumes.
func dependsOn(a, b *flow.Operation) bool {
	visited := map[*flow.Operation]bool{}

	var walk func(op *flow.Operation) bool
	walk = func(op *flow.Operation) bool {
		if visited[op] {
			return false
		}
		visited[op] = true

		for _, v := range op.Outputs {
			for _, c := range v.Consumers {
				if c == b {
					return true
				}

				if walk(c) {
					return true
				}
			}
		}

		return false
	}

	return walk(a)
}

// fuse attempts to merge a and b into a single Calculate (or Assign)
// operation, returning false (no error) for any condition under which
// the rewrite cannot be proven sound.
func (t *ExpressionTransformer) fuse(ctx context.Context, f *flow.Flow, a, b *flow.Operation) (bool, error) {
	if a.HasAttr("nomerge") || b.HasAttr("nomerge") {
		return false, nil
	}

	if t.isDenied(a.Type, b.Type) {
		return false, nil
	}

	ra, err := recipeOf(a)
	if err != nil {
		return false, err
	}

	rb, err := recipeOf(b)
	if err != nil {
		return false, err
	}

	edges := findEdges(a, b)

	for _, v := range a.Outputs {
		for _, c := range v.Consumers {
			if c != b && dependsOn(c, b) {
				return false, nil // b also depends on a through another op: fusing would form a cycle
			}
		}
	}

	for _, e := range edges {
		av := ra.varOf[a.Outputs[e.aOut]]
		if av.Producer != nil && av.Producer.Type.Reduction() {
			return false, nil // reduction result may not be consumed further
		}
	}

	if !compatibleOperands(a, b, edges) {
		return false, nil
	}

	fused, err := t.merge(f, a, b, ra, rb, edges)
	if err != nil {
		return false, err
	}

	tlog.SpanFromContext(ctx).Printw("fused", "a", a.Name, "b", b.Name, "into", fused.Name, "recipe", fused.Attr("expr"))

	return true, nil
}

type edge struct{ aOut, bIn int }

func findEdges(a, b *flow.Operation) []edge {
	var edges []edge

	for bi, v := range b.Inputs {
		for ai, ov := range a.Outputs {
			if ov == v {
				edges = append(edges, edge{aOut: ai, bIn: bi})
			}
		}
	}

	return edges
}

// compatibleOperands checks type equality and broadcast compatibility
// of every non-fused operand against the widest (prototype) operand.
func compatibleOperands(a, b *flow.Operation, edges []edge) bool {
	fused := map[*flow.Variable]bool{}
	for _, e := range edges {
		fused[a.Outputs[e.aOut]] = true
	}

	var operands []*flow.Variable

	for _, v := range a.Inputs {
		operands = append(operands, v)
	}
	for _, v := range b.Inputs {
		if !fused[v] {
			operands = append(operands, v)
		}
	}
	for _, v := range a.Outputs {
		operands = append(operands, v)
	}
	for _, v := range b.Outputs {
		operands = append(operands, v)
	}

	if len(operands) == 0 {
		return true
	}

	proto := operands[0]
	for _, v := range operands[1:] {
		if v.Shape.Elements() > proto.Shape.Elements() {
			proto = v
		}
	}

	for _, v := range operands {
		if v.Type != proto.Type {
			return false
		}

		if !v.Shape.Scalar() && !v.Shape.BroadcastCompatible(proto.Shape) {
			return false
		}
	}

	return true
}

// merge performs the structural rewrite: builds the fused flow
// operation plus its merged recipe, and excises a and b from the flow.
func (t *ExpressionTransformer) merge(f *flow.Flow, a, b *flow.Operation, ra, rb *recipe, edges []edge) (*flow.Operation, error) {
	fusedType := "Calculate"
	if b.Type == "Assign" {
		fusedType = "Assign"
	}

	fused := f.NewOperation(a.Name+"+"+b.Name, fusedType)
	fused.Task = b.Task

	isFusedVar := map[*flow.Variable]bool{}
	for _, e := range edges {
		isFusedVar[a.Outputs[e.aOut]] = true
	}

	stillObserved := func(v *flow.Variable) bool {
		if v.Output() {
			return true
		}

		for _, c := range v.Consumers {
			if c != b {
				return true
			}
		}

		return false
	}

	var newInputs []*flow.Variable
	seen := map[*flow.Variable]bool{}

	for _, v := range a.Inputs {
		if seen[v] {
			continue
		}
		seen[v] = true
		newInputs = append(newInputs, v)
	}

	for _, v := range b.Inputs {
		if isFusedVar[v] || seen[v] {
			continue
		}
		seen[v] = true
		newInputs = append(newInputs, v)
	}

	if fusedType == "Assign" && len(b.Inputs) > 0 {
		target := b.Inputs[0]

		ti := -1
		for i, v := range newInputs {
			if v == target {
				ti = i
				break
			}
		}

		if ti > 0 {
			newInputs[0], newInputs[ti] = newInputs[ti], newInputs[0]
		}
	}

	me := expr.New()

	flowVarToMerged := map[*flow.Variable]*expr.Var{}
	inCount, constCount := 0, 0

	for _, v := range newInputs {
		if v.Constant() {
			flowVarToMerged[v] = me.Var(expr.Const, constCount)
			constCount++
		} else {
			flowVarToMerged[v] = me.Var(expr.Input, inCount)
			inCount++
		}
	}

	nextOutID := 0
	var fusedOutputs []*flow.Variable

	cacheA := map[*expr.Var]*expr.Var{}
	cacheB := map[*expr.Var]*expr.Var{}

	var mapA, mapB func(v *expr.Var) *expr.Var

	mapA = func(v *expr.Var) *expr.Var {
		if mv, ok := cacheA[v]; ok {
			return mv
		}

		var mv *expr.Var

		switch v.Type {
		case expr.Input, expr.Const:
			mv = flowVarToMerged[ra.flowOf[v]]
		case expr.Number:
			mv = me.Var(expr.Number, v.ID)
		case expr.Output:
			flowVar := ra.flowOf[v]
			if isFusedVar[flowVar] && !stillObserved(flowVar) {
				mv = me.NewTemp()
			} else {
				mv = me.Var(expr.Output, nextOutID)
				nextOutID++
				fusedOutputs = append(fusedOutputs, flowVar)
			}
		default: // Temp
			mv = me.NewTemp()
		}

		cacheA[v] = mv

		return mv
	}

	mapB = func(v *expr.Var) *expr.Var {
		if mv, ok := cacheB[v]; ok {
			return mv
		}

		var mv *expr.Var

		switch v.Type {
		case expr.Input, expr.Const:
			flowVar := rb.flowOf[v]
			if isFusedVar[flowVar] {
				mv = mapA(ra.varOf[flowVar])
			} else {
				mv = flowVarToMerged[flowVar]
			}
		case expr.Number:
			mv = me.Var(expr.Number, v.ID)
		case expr.Output:
			mv = me.Var(expr.Output, nextOutID)
			nextOutID++
			fusedOutputs = append(fusedOutputs, rb.flowOf[v])
		default: // Temp
			mv = me.NewTemp()
		}

		cacheB[v] = mv

		return mv
	}

	for _, op := range ra.expr.Ops {
		args := make([]*expr.Var, len(op.Args))
		for i, x := range op.Args {
			args[i] = mapA(x)
		}

		me.Emit(op.Type, mapA(op.Result), args...)
	}

	for _, op := range rb.expr.Ops {
		args := make([]*expr.Var, len(op.Args))
		for i, x := range op.Args {
			args[i] = mapB(x)
		}

		me.Emit(op.Type, mapB(op.Result), args...)
	}

	for _, v := range newInputs {
		f.AddInput(fused, v)
	}

	for _, v := range fusedOutputs {
		f.AddOutput(fused, v)
	}

	f.RemoveOperation(a)
	f.RemoveOperation(b)

	for v := range isFusedVar {
		if !stillObserved(v) {
			f.RemoveVariable(v)
		}
	}

	fused.SetAttr("expr", me.Recipe())

	return fused, nil
}
