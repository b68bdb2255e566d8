// Package runtime implements the execution-side contract the code
// emission driver targets (spec §5): instance and channel lifecycle,
// and the task start/wait/sync primitives asynchronous steps compile
// down to. Runtime is the consumed interface; Host is this package's
// reference implementation, running tasks as goroutines.
package runtime

import (
	"context"
	"sync"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/myelin-ml/myelin/asm"
	"github.com/myelin-ml/myelin/compile"
)

// Instance is one allocated, zeroed copy of a Cell's storage: the
// host byte buffer every planned Tensor's Offset indexes into, plus
// its device counterpart when the cell has any Device-placed tensor.
type Instance struct {
	Cell   *compile.Cell
	Host   []byte
	Device []byte
}

// Channel is a bounded ring buffer carrying one Connector's element
// stream between cells (spec §3 streaming/recurrent boundaries).
type Channel struct {
	Conn *compile.Connector
	Cap  int

	mu   sync.Mutex
	buf  [][]byte
	head int
	size int
}

// Task is a handle to one asynchronous step's execution, started by
// StartTask and joined by WaitTask.
type Task struct {
	ID   int
	done chan struct{}
	err  error
}

// TensorTransfer describes one host<->device copy EmitTensorTransfers
// must generate: the emission driver issues these whenever a step's
// placement crosses the host/device boundary of an Everywhere tensor.
type TensorTransfer struct {
	Tensor   *compile.Tensor
	ToDevice bool
}

// Runtime is the execution substrate the emission driver and the
// compiled network's caller depend on.
type Runtime interface {
	AllocateInstance(cell *compile.Cell) (*Instance, error)
	FreeInstance(inst *Instance)
	ClearInstance(inst *Instance)

	AllocateChannel(conn *compile.Connector, capacity int) (*Channel, error)
	FreeChannel(ch *Channel)
	ClearChannel(ch *Channel)

	// StartTask launches fn asynchronously under id, WaitTask blocks
	// until the given task completes.
	StartTask(ctx context.Context, id int, fn func(context.Context) error) *Task
	WaitTask(ctx context.Context, t *Task) error

	// SyncMain blocks until every task started on the main instance has
	// completed. The emission driver does not call it; it emits asm.Sync
	// instructions at a cell's device/host synchronization points.
	SyncMain(ctx context.Context)

	// SupportsAsync reports whether this runtime can actually run a
	// step on a separate task. Cell construction only marks a step
	// Async when this is true, so a runtime without task support (or a
	// constrained deployment target) gets a fully synchronous network
	// instead of start/wait trampolines it could never satisfy.
	SupportsAsync() bool

	// EmitTensorTransfers lets the runtime contribute its own transfer
	// instructions (DMA, unified memory fences, ...) into a program the
	// emission driver is building; Host has nothing to add.
	EmitTensorTransfers(xfers []TensorTransfer, masm *asm.Assembler) error

	// ExtraInstanceData returns additional per-instance bookkeeping
	// bytes a concrete runtime wants appended past a cell's planned
	// size (e.g. a device command buffer); Host always returns 0.
	ExtraInstanceData(cell *compile.Cell) int64
}

// Host is the reference Runtime: synchronous host memory, goroutines
// for asynchronous tasks, and channels backed by an in-process slice
// ring buffer. It never allocates device memory.
type Host struct {
	wg sync.WaitGroup
}

func NewHost() *Host { return &Host{} }

func (h *Host) AllocateInstance(cell *compile.Cell) (*Instance, error) {
	if cell.InstanceSize < 0 {
		return nil, errors.New("cell %s: negative instance size", cell.Name)
	}

	inst := &Instance{
		Cell: cell,
		Host: make([]byte, cell.InstanceSize+h.ExtraInstanceData(cell)),
	}

	for _, t := range cell.Tensors {
		if t.Constant && t.Data != nil && t.Offset >= 0 {
			copy(inst.Host[t.Offset:], t.Data)
		}
	}

	return inst, nil
}

func (h *Host) FreeInstance(inst *Instance) { inst.Host = nil }

func (h *Host) ClearInstance(inst *Instance) {
	for i := range inst.Host {
		inst.Host[i] = 0
	}
}

func (h *Host) AllocateChannel(conn *compile.Connector, capacity int) (*Channel, error) {
	if capacity <= 0 {
		return nil, errors.New("channel %s: capacity must be positive, got %d", conn.Name, capacity)
	}

	return &Channel{Conn: conn, Cap: capacity, buf: make([][]byte, capacity)}, nil
}

func (h *Host) FreeChannel(ch *Channel) { ch.buf = nil }

func (h *Host) ClearChannel(ch *Channel) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.head, ch.size = 0, 0
}

// Push enqueues one element, blocking callers must select on fullness
// themselves: Push reports ok == false when the channel is full.
func (ch *Channel) Push(elem []byte) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.size == ch.Cap {
		return false
	}

	ch.buf[(ch.head+ch.size)%ch.Cap] = elem
	ch.size++

	return true
}

// Pop dequeues the oldest element, ok == false if the channel is
// empty.
func (ch *Channel) Pop() ([]byte, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.size == 0 {
		return nil, false
	}

	elem := ch.buf[ch.head]
	ch.buf[ch.head] = nil
	ch.head = (ch.head + 1) % ch.Cap
	ch.size--

	return elem, true
}

func (h *Host) StartTask(ctx context.Context, id int, fn func(context.Context) error) *Task {
	t := &Task{ID: id, done: make(chan struct{})}

	h.wg.Add(1)

	go func() {
		defer h.wg.Done()
		defer close(t.done)

		tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "runtime: task", "task", id)
		defer tr.Finish("err", &t.err)

		t.err = fn(ctx)
	}()

	return t
}

func (h *Host) WaitTask(ctx context.Context, t *Task) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Host) SyncMain(ctx context.Context) { h.wg.Wait() }

func (h *Host) SupportsAsync() bool { return true }

func (h *Host) EmitTensorTransfers(xfers []TensorTransfer, masm *asm.Assembler) error {
	return nil
}

func (h *Host) ExtraInstanceData(cell *compile.Cell) int64 { return 0 }
