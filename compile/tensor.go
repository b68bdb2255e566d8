package compile

import "github.com/myelin-ml/myelin/flow"

// Tensor is the compiled shadow of a flow.Variable: a named, typed,
// shaped storage location within a Cell's instance, plus the planning
// metadata kernels declare via Adjust and the memory planner resolves.
type Tensor struct {
	Name  string
	Type  flow.Type
	Shape flow.Shape

	// Order is the element order a kernel requires or planning has
	// resolved; AnyOrder until something constrains it.
	Order Order

	Placement Placement

	// MinAlign is the minimum byte alignment the planner must honor;
	// 0 means "no constraint beyond the type's natural alignment".
	MinAlign int

	// AlignLast requests that the tensor's innermost dimension itself
	// be padded up to MinAlign, not just the tensor's base address.
	AlignLast bool

	// Link points at another tensor this one must share an alignment
	// class with (planner-internal union-find; see plan.Plan).
	Link *Tensor

	// Shared, when non-nil, is the tensor whose storage this one
	// reuses. The planner gives such a tensor the offsets of the end of
	// its Shared chain; it never sets Shared itself.
	Shared *Tensor

	// Offset/DeviceOffset are byte offsets into the owning cell's host
	// and device instance, -1 until the planner assigns them.
	Offset       int64
	DeviceOffset int64

	// External marks a tensor that must stay valid once its owning
	// cell returns (a flow output, or a cross-cell boundary value): the
	// planner never reuses its storage for anything else.
	External bool

	// Constant reports whether this tensor carries fixed, caller-owned
	// data loaded into the instance once at AllocateInstance time.
	Constant bool
	Data     []byte

	Producer  *Step
	Consumers []*Step

	flowVar *flow.Variable
	index   int
}

// NewTensor returns a freshly constructed, unplanned tensor.
func NewTensor(name string, t flow.Type, shape flow.Shape) *Tensor {
	return &Tensor{
		Name:         name,
		Type:         t,
		Shape:        shape,
		Offset:       -1,
		DeviceOffset: -1,
	}
}

// Bytes returns the tensor's footprint in bytes, ignoring alignment
// padding.
func (t *Tensor) Bytes() int64 {
	return int64(t.Shape.Elements()) * int64(t.Type.Size())
}

// SetMinAlign raises the tensor's minimum alignment requirement; a
// kernel calls this from Adjust to declare what it needs, and the
// strictest request across all consumers/producer wins.
func (t *Tensor) SetMinAlign(align int) {
	if align > t.MinAlign {
		t.MinAlign = align
	}
}

// SetAlignLast requests the innermost dimension be padded to MinAlign.
func (t *Tensor) SetAlignLast() { t.AlignLast = true }

// RequireOrder constrains the tensor's element order. Two
// incompatible requirements resolve to Conflicting, which plan.Plan
// rejects with an error.
func (t *Tensor) RequireOrder(o Order) {
	switch {
	case t.Order == AnyOrder:
		t.Order = o
	case t.Order != o:
		t.Order = Conflicting
	}
}

// LinkTo joins t and other into the same alignment class: the planner
// guarantees they end up at offsets that differ by a multiple of
// their common alignment (used for operands that must stay in step,
// e.g. peer lanes of a batched kernel).
func (t *Tensor) LinkTo(other *Tensor) {
	t.Link = other
}

// Planned reports whether the memory planner has assigned this
// tensor an offset.
func (t *Tensor) Planned() bool { return t.Offset >= 0 }
