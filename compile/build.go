package compile

import (
	"tlog.app/go/errors"

	"github.com/myelin-ml/myelin/flow"
)

// BuildNetwork performs cell construction (spec §4 stage 3): it walks
// an already-transformed flow.Flow, partitions its operations into
// Cells (by the "cell" attribute, defaulting to "main"), builds each
// operation's Step and its operand Tensors, and binds every step to a
// kernel selected from lib. asyncSupported gates whether a step with a
// positive task index is actually marked Async (spec §4.3); pass the
// target runtime's SupportsAsync().
func BuildNetwork(f *flow.Flow, lib *Library, asyncSupported bool) (*Network, error) {
	n := &Network{Name: "network", Lib: lib}

	cellOf := map[string]*Cell{}
	tensorOf := map[*flow.Variable]*Tensor{}

	cellFor := func(name string) *Cell {
		if c, ok := cellOf[name]; ok {
			return c
		}

		c := &Cell{Name: name, network: n, index: len(n.Cells)}
		cellOf[name] = c
		n.Cells = append(n.Cells, c)

		return c
	}

	tensorFor := func(v *flow.Variable, owner *Cell) *Tensor {
		if t, ok := tensorOf[v]; ok {
			if !containsTensor(owner.Tensors, t) {
				owner.Tensors = append(owner.Tensors, t)
			}

			return t
		}

		t := NewTensor(v.Name, v.Type, v.Shape)
		t.flowVar = v
		t.index = len(n.Tensors)

		if v.Output() {
			t.Placement = Host
			t.External = true
		}

		if v.Constant() {
			t.Constant = true
			t.Data = v.Data
			t.Placement = Host
			t.External = true
		}

		tensorOf[v] = t
		n.Tensors = append(n.Tensors, t)
		owner.Tensors = append(owner.Tensors, t)

		return t
	}

	for _, op := range f.Ops {
		cellName := op.Attr("cell")
		if cellName == "" {
			cellName = "main"
		}

		cell := cellFor(cellName)

		step := &Step{
			Name:   op.Name,
			OpType: op.Type,
			Task:   op.Task,
			Async:  asyncSupported && op.Task > 0,
			flowOp: op,
			cell:   cell,
			index:  len(cell.Steps),
		}

		for _, v := range op.Inputs {
			t := tensorFor(v, cell)
			step.Inputs = append(step.Inputs, t)
			t.Consumers = append(t.Consumers, step)
		}

		for _, v := range op.Outputs {
			t := tensorFor(v, cell)
			step.Outputs = append(step.Outputs, t)
			t.Producer = step
		}

		cell.Steps = append(cell.Steps, step)
	}

	markCrossCellBoundaries(n)

	for _, c := range n.Cells {
		for _, step := range c.Steps {
			k, err := lib.Select(step)
			if err != nil {
				return nil, errors.Wrap(err, "cell %s", c.Name)
			}

			step.Kernel = k

			if err := k.Adjust(step); err != nil {
				return nil, errors.Wrap(err, "cell %s, step %s", c.Name, step.Name)
			}
		}
	}

	return n, nil
}

// markCrossCellBoundaries flags every tensor produced in one cell and
// consumed in another as External: its storage must outlive the
// producing cell's own lifetime, so the planner must never reuse it.
func markCrossCellBoundaries(n *Network) {
	for _, t := range n.Tensors {
		if t.Producer == nil {
			continue
		}

		home := t.Producer.cell

		for _, c := range t.Consumers {
			if c.cell != home {
				t.External = true
				break
			}
		}
	}
}

func containsTensor(ts []*Tensor, t *Tensor) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}

	return false
}
