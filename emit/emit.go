// Package emit implements the code emission driver (spec §4.3): for
// each cell it walks its steps in dependency order, asking every
// step's kernel to generate code into a macro-assembler, wrapping
// asynchronous steps in start/wait trampolines and inserting
// host/device synchronization wherever a tensor crosses that
// boundary.
package emit

import (
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/myelin-ml/myelin/asm"
	"github.com/myelin-ml/myelin/compile"
	"github.com/myelin-ml/myelin/runtime"
)

// Cell is one cell's emitted code: its main (synchronous driver)
// program plus one program per task id it launched asynchronously.
type Cell struct {
	Main  asm.Program
	Tasks map[int]asm.Program
}

// Emit generates code for every cell of n, returning each by name.
func Emit(n *compile.Network, rt runtime.Runtime) (map[string]*Cell, error) {
	out := make(map[string]*Cell, len(n.Cells))

	for _, cell := range n.Cells {
		c, err := emitCell(cell, rt)
		if err != nil {
			return nil, errors.Wrap(err, "cell %s", cell.Name)
		}

		out[cell.Name] = c
	}

	return out, nil
}

func emitCell(cell *compile.Cell, rt runtime.Runtime) (*Cell, error) {
	main := asm.New(cell.Name, false)
	tasks := map[int]asm.Program{}

	pending := map[int]bool{}

	for _, step := range cell.Steps {
		if err := waitForDependencies(main, step, pending); err != nil {
			return nil, err
		}

		if err := emitStep(step, main, tasks, pending, rt); err != nil {
			return nil, errors.Wrap(err, "step %s", step.Name)
		}

		if err := syncBoundaries(main, step, rt); err != nil {
			return nil, errors.Wrap(err, "step %s", step.Name)
		}
	}

	for id := range pending {
		main.WaitTask(id)
	}

	return &Cell{Main: main.Program(), Tasks: tasks}, nil
}

// waitForDependencies emits a WaitTask for every still-outstanding
// task whose output step is about to be consumed.
func waitForDependencies(main *asm.Assembler, step *compile.Step, pending map[int]bool) error {
	seen := map[int]bool{}

	for _, in := range step.Inputs {
		producer := in.Producer
		if producer == nil || !producer.Async || !pending[producer.Task] || seen[producer.Task] {
			continue
		}

		seen[producer.Task] = true

		main.WaitTask(producer.Task)
		delete(pending, producer.Task)
	}

	return nil
}

func emitStep(step *compile.Step, main *asm.Assembler, tasks map[int]asm.Program, pending map[int]bool, rt runtime.Runtime) error {
	if step.Kernel == nil {
		return errors.New("step has no kernel bound")
	}

	if !step.Async {
		return step.Kernel.Generate(step, main)
	}

	task := asm.New(step.Name, step.Location() == compile.Device)
	if err := step.Kernel.Generate(step, task); err != nil {
		return err
	}

	tasks[step.Task] = task.Program()
	pending[step.Task] = true

	main.StartTask(step.Task, step.Name)

	tlog.Printw("emit: started async step", "step", step.Name, "task", step.Task)

	return nil
}

// syncBoundaries inserts a synchronization barrier whenever step just
// produced an Everywhere-placed tensor, and lets rt append its own
// transfer instructions. Only the step's outputs are examined; the
// tensors it consumes never cause a barrier.
func syncBoundaries(main *asm.Assembler, step *compile.Step, rt runtime.Runtime) error {
	var xfers []runtime.TensorTransfer

	for _, t := range step.Outputs {
		if t.Placement != compile.Everywhere {
			continue
		}

		xfers = append(xfers, runtime.TensorTransfer{Tensor: t, ToDevice: step.Location() == compile.Host})
	}

	if len(xfers) == 0 {
		return nil
	}

	if step.Location() == compile.Device {
		main.SyncDevice()
	} else {
		main.SyncHost()
	}

	return rt.EmitTensorTransfers(xfers, main)
}
