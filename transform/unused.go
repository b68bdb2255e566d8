package transform

import (
	"context"

	"tlog.app/go/errors"

	"github.com/myelin-ml/myelin/expr"
	"github.com/myelin-ml/myelin/flow"
)

// RemoveUnusedInputs drops non-constant input edges of a
// Calculate/Assign operation that its recipe never references,
// renumbering the remaining input variables to stay contiguous.
// Constant inputs are kept whether or not the recipe references them.
type RemoveUnusedInputs struct{}

func (RemoveUnusedInputs) Name() string { return "RemoveUnusedInputs" }

func (RemoveUnusedInputs) Apply(ctx context.Context, f *flow.Flow) (bool, error) {
	changed := false

	for _, op := range f.Ops {
		if op.Type != "Calculate" && op.Type != "Assign" {
			continue
		}

		recipe := op.Attr("expr")
		if recipe == "" {
			continue
		}

		e, err := expr.Parse(recipe)
		if err != nil {
			return changed, errors.Wrap(err, "op %s: parse recipe", op.Name)
		}

		used := map[int]bool{}
		for _, v := range e.Inputs() {
			used[v.ID] = true
		}

		remap := map[int]int{}
		kept := make([]*flow.Variable, 0, len(op.Inputs))

		// Constant inputs are numbered separately ('#') and always kept;
		// i counts only the '%'-numbered inputs.
		next, i := 0, -1
		for _, v := range op.Inputs {
			if v.Constant() {
				kept = append(kept, v)
				continue
			}

			i++
			if !used[i] {
				removeAsConsumer(v, op)
				continue
			}

			remap[i] = next
			kept = append(kept, v)
			next++
		}

		if len(kept) == len(op.Inputs) {
			continue // every input referenced
		}

		for _, v := range e.Inputs() {
			v.ID = remap[v.ID]
		}

		op.Inputs = kept
		op.SetAttr("expr", e.Recipe())

		changed = true
	}

	return changed, nil
}
