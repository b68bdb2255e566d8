package compile

import (
	"tlog.app/go/errors"

	"github.com/myelin-ml/myelin/asm"
)

// Kernel implements code generation for one flow operation type. A
// single op type may be served by several kernels of differing
// applicability and cost; Library picks among them.
type Kernel interface {
	// Name identifies this particular kernel implementation, e.g.
	// "GenericAdd" or "AVX2MatMul".
	Name() string

	// Operation is the flow operation type this kernel implements.
	Operation() string

	// Supports reports whether this kernel can generate code for step
	// as it currently stands (types, shapes, element order).
	Supports(step *Step) bool

	// Adjust declares the step's placement, alignment, order and
	// in-place constraints before planning runs. Called once, after
	// selection, before the memory planner sees the network.
	Adjust(step *Step) error

	// Generate emits step's code into masm. Called during the code
	// emission driver pass, after planning has assigned offsets.
	Generate(step *Step, masm *asm.Assembler) error

	// Complexity estimates relative execution cost. Library.Select does
	// not consult it: it picks the first registered kernel that supports
	// the step.
	Complexity(step *Step) int64

	// Location reports where this kernel's code runs.
	Location() Placement
}

// Library maps an operation type to an ordered list of candidate
// kernels; Select returns the first one that reports Supports == true.
type Library struct {
	byOp map[string][]Kernel
}

// NewLibrary returns an empty kernel library.
func NewLibrary() *Library {
	return &Library{byOp: map[string][]Kernel{}}
}

// Register appends k to the candidate list for its declared Operation,
// lowest priority last.
func (l *Library) Register(k Kernel) {
	l.byOp[k.Operation()] = append(l.byOp[k.Operation()], k)
}

// Select returns the first registered kernel for step's operation type
// whose Supports reports true.
func (l *Library) Select(step *Step) (Kernel, error) {
	for _, k := range l.byOp[step.OpType] {
		if k.Supports(step) {
			return k, nil
		}
	}

	return nil, errors.New("no kernel supports operation %q (step %s)", step.OpType, step.Name)
}

// Kernels returns the candidate list registered for opType, for
// diagnostics and tests.
func (l *Library) Kernels(opType string) []Kernel {
	return l.byOp[opType]
}
