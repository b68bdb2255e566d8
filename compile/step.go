package compile

import "github.com/myelin-ml/myelin/flow"

// Step is the compiled shadow of one flow.Operation: an operation type
// bound to a Kernel, its operand tensors, and the placement/scheduling
// metadata the code emission driver consumes.
type Step struct {
	Name   string
	OpType string

	Inputs  []*Tensor
	Outputs []*Tensor

	Kernel Kernel

	// Async marks a step whose code runs on a separate task (spec §5):
	// the emission driver wraps it in a start/wait trampoline pair
	// instead of emitting it inline.
	Async bool
	Task  int

	// inPlace maps an output index to the input index it is allowed to
	// alias, as declared by the kernel during Adjust.
	inPlace map[int]int

	overrides map[string]string

	flowOp *flow.Operation
	cell   *Cell
	index  int
}

// SetAttr attaches a step-local attribute, overriding (without
// mutating) any same-named attribute on the underlying flow
// operation. Kernels use this in Adjust to synthesize a recipe for an
// operation the fusion pass left unfused.
func (s *Step) SetAttr(name, value string) {
	if s.overrides == nil {
		s.overrides = map[string]string{}
	}

	s.overrides[name] = value
}

// AllowInPlace records that output out may be computed in the storage
// of input in; InPlaceInput reads the record back. plan.Plan does not
// consult it and gives the two tensors separate offsets.
func (s *Step) AllowInPlace(out, in int) {
	if s.inPlace == nil {
		s.inPlace = map[int]int{}
	}

	s.inPlace[out] = in
}

// InPlaceInput returns the input index output out may alias, and
// whether one was declared.
func (s *Step) InPlaceInput(out int) (int, bool) {
	in, ok := s.inPlace[out]
	return in, ok
}

// Cell returns the cell this step belongs to.
func (s *Step) Cell() *Cell { return s.cell }

// Attr returns the named attribute of the flow operation this step
// was built from, "" if absent. Kernels use this to read the fused
// recipe ("expr") a Calculate/Assign step carries.
func (s *Step) Attr(name string) string {
	if v, ok := s.overrides[name]; ok {
		return v
	}

	if s.flowOp == nil {
		return ""
	}

	return s.flowOp.Attr(name)
}

// Location returns where this step's kernel runs.
func (s *Step) Location() Placement {
	if s.Kernel == nil {
		return Nowhere
	}

	return s.Kernel.Location()
}
