// Package plan implements the memory planner (spec §4 stage 4): it
// resolves each cell's tensors to concrete byte offsets within a
// shared instance, honoring the alignment and order constraints
// kernels declared during cell construction, reusing storage between
// tensors whose live ranges never overlap, and assigning offsets with
// a best-fit bin-packing allocator.
package plan

import (
	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"nikand.dev/go/heap"

	"github.com/myelin-ml/myelin/compile"
)

// defaultAlign is the alignment every tensor gets when no kernel
// raised the bar, chosen to satisfy common SIMD widths.
const defaultAlign = 16

// Plan assigns storage offsets in every cell of n: each step output
// gets a host and/or device offset according to its placement, and
// every other host-placed tensor of the cell (constants, inputs) gets a
// host offset. Tensors placed Nowhere keep offset -1. It fails on a
// tensor whose element order requirements conflict.
func Plan(n *compile.Network) error {
	resolveAlignmentClasses(n)

	for _, cell := range n.Cells {
		if err := planCell(cell); err != nil {
			return errors.Wrap(err, "cell %s", cell.Name)
		}
	}

	return nil
}

// resolveAlignmentClasses propagates each tensor's MinAlign across its
// Link union-find class, via path compression, so that every member of
// a class ends up with the same (strictest) alignment.
func resolveAlignmentClasses(n *compile.Network) {
	find := func(t *compile.Tensor) *compile.Tensor {
		root := t
		for root.Link != nil {
			root = root.Link
		}

		for t.Link != nil {
			next := t.Link
			t.Link = root
			t = next
		}

		return root
	}

	classAlign := map[*compile.Tensor]int{}

	for _, t := range n.Tensors {
		root := find(t)

		if t.MinAlign > classAlign[root] {
			classAlign[root] = t.MinAlign
		}
	}

	for _, t := range n.Tensors {
		root := find(t)

		align := classAlign[root]
		if align < defaultAlign {
			align = defaultAlign
		}

		t.SetMinAlign(align)
	}
}

func planCell(cell *compile.Cell) error {
	host := newAllocator()
	device := newAllocator()

	hostMax, deviceMax := defaultAlign, defaultAlign

	liveEnd := computeLiveEnds(cell)

	for _, t := range cell.Tensors {
		if t.Order == compile.Conflicting {
			return errors.New("tensor %s: conflicting element order requirements", t.Name)
		}

		// Tensors no step of this cell produces (constants, host-placed
		// inputs) get host storage that lasts for the whole cell.
		if t.Shared != nil || t.Planned() || !t.Placement.HasHost() || (t.Producer != nil && t.Producer.Cell() == cell) {
			continue
		}

		align := max(t.MinAlign, defaultAlign)
		t.Offset = host.alloc(allocSize(t), int64(align))
		hostMax = max(hostMax, align)
	}

	for i, step := range cell.Steps {
		for _, out := range step.Outputs {
			if out.Shared != nil || out.Planned() {
				continue
			}

			align := out.MinAlign
			if align < defaultAlign {
				align = defaultAlign
			}

			size := out.Bytes()
			if out.AlignLast {
				size = alignUp(size, int64(align))
			}

			if out.Placement.HasHost() {
				out.Offset = host.alloc(size, int64(align))

				if align > hostMax {
					hostMax = align
				}
			}

			if out.Placement.HasDevice() {
				out.DeviceOffset = device.alloc(size, int64(align))

				if align > deviceMax {
					deviceMax = align
				}
			}
		}

		for _, t := range liveEnd[i] {
			if t.Shared != nil {
				continue
			}

			if t.Placement.HasHost() && t.Offset >= 0 {
				host.free(t.Offset, allocSize(t))
			}

			if t.Placement.HasDevice() && t.DeviceOffset >= 0 {
				device.free(t.DeviceOffset, allocSize(t))
			}
		}
	}

	for _, t := range cell.Tensors {
		if t.Shared == nil {
			continue
		}

		root := resolveShared(t)

		if !root.Planned() {
			return errors.New("tensor %s shares storage with unplanned tensor %s", t.Name, root.Name)
		}

		t.Offset = root.Offset
		t.DeviceOffset = root.DeviceOffset
	}

	cell.InstanceSize = host.top
	cell.InstanceAlignment = hostMax
	cell.DeviceInstanceSize = device.top
	cell.DeviceInstanceAlignment = deviceMax

	tlog.Printw("planned cell", "cell", cell.Name, "instance_size", cell.InstanceSize, "instance_alignment", cell.InstanceAlignment)

	return nil
}

func resolveShared(t *compile.Tensor) *compile.Tensor {
	for t.Shared != nil {
		t = t.Shared
	}

	return t
}

func allocSize(t *compile.Tensor) int64 {
	size := t.Bytes()
	if t.AlignLast {
		align := t.MinAlign
		if align < defaultAlign {
			align = defaultAlign
		}

		size = alignUp(size, int64(align))
	}

	return size
}

// computeLiveEnds returns, for each step index i, the tensors whose
// last use within the cell is step i (so their storage may be freed
// once step i has run). A tensor consumed outside the cell, or marked
// externally visible, never appears: its storage lives for the whole
// cell.
func computeLiveEnds(cell *compile.Cell) [][]*compile.Tensor {
	ends := make([]int, len(cell.Tensors))
	index := map[*compile.Tensor]int{}

	for i, t := range cell.Tensors {
		index[t] = i
		ends[i] = -1
	}

	belongsHere := func(t *compile.Tensor) bool {
		_, ok := index[t]
		return ok
	}

	for i, step := range cell.Steps {
		for _, in := range step.Inputs {
			if !belongsHere(in) {
				continue
			}

			ends[index[in]] = i
		}
	}

	for i, step := range cell.Steps {
		for _, out := range step.Outputs {
			if len(out.Consumers) == 0 && belongsHere(out) {
				ends[index[out]] = i // dead output: free right after it's produced
			}
		}
	}

	byStep := make([][]*compile.Tensor, len(cell.Steps))

	for i, t := range cell.Tensors {
		if ends[i] < 0 || t.Placement == compile.Nowhere || t.External {
			continue
		}

		if t.Producer == nil || t.Producer.Cell() != cell {
			continue // not locally produced: the planner never owns its lifetime
		}

		byStep[ends[i]] = append(byStep[ends[i]], t)
	}

	return byStep
}

func alignUp(x, align int64) int64 {
	if align <= 1 {
		return x
	}

	return (x + align - 1) &^ (align - 1)
}

// gap is one free byte range within an allocator's instance.
type gap struct {
	offset int64
	size   int64
}

type allocator struct {
	gaps heap.Heap[gap]
	top  int64
}

func newAllocator() *allocator {
	return &allocator{gaps: heap.Heap[gap]{Less: func(g []gap, i, j int) bool { return g[i].size < g[j].size }}}
}

// free returns [offset, offset+size) to the allocator's pool.
func (a *allocator) free(offset, size int64) {
	tlog.V("plan_free").Printw("gap freed", "offset", offset, "size", size, "from", loc.Caller(1))

	a.gaps.Push(gap{offset: offset, size: size})
}

// alloc returns an offset at least size bytes wide, aligned to align,
// reusing a free gap via best fit when one is large enough and
// otherwise bumping the instance's high-water mark.
func (a *allocator) alloc(size, align int64) int64 {
	var spares []gap

	found := false
	var bestGap gap

	for a.gaps.Len() > 0 {
		g := a.gaps.Pop()

		aligned := alignUp(g.offset, align)
		waste := aligned - g.offset

		if g.size-waste >= size && (!found || g.size < bestGap.size) {
			if found {
				spares = append(spares, bestGap)
			}

			found = true
			bestGap = g

			continue
		}

		spares = append(spares, g)
	}

	for _, g := range spares {
		a.gaps.Push(g)
	}

	if !found {
		offset := alignUp(a.top, align)
		a.top = offset + size

		return offset
	}

	aligned := alignUp(bestGap.offset, align)
	leading := aligned - bestGap.offset

	if leading > 0 {
		a.gaps.Push(gap{offset: bestGap.offset, size: leading})
	}

	trailing := bestGap.size - leading - size
	if trailing > 0 {
		a.gaps.Push(gap{offset: aligned + size, size: trailing})
	}

	return aligned
}

