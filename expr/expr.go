// Package expr implements the flat Expression IR used by operator
// fusion and by the code-emission driver's expression generator: a
// small SSA-style list of typed variables and ops, serialized as a
// textual recipe on the `expr` attribute of a Calculate/Assign flow
// operation.
package expr

import "tlog.app/go/tlog/tlwire"

// VarType classifies an Expression variable by its role.
type VarType int

const (
	Input VarType = iota
	Const
	Output
	Temp
	Number
)

func (t VarType) sigil() byte {
	switch t {
	case Input:
		return '%'
	case Const:
		return '#'
	case Output:
		return '@'
	case Temp:
		return '$'
	case Number:
		return '_'
	default:
		return '?'
	}
}

// OpType is the operation performed by an expression Op.
type OpType int

const (
	Nop OpType = iota // MOV, r = a

	Add
	Sub
	Mul
	Div
	Min
	Max

	Relu
	Log
	Exp
	Sigmoid
	Tanh
	Sqrt
	Rsqrt
	Reciprocal
	Neg
	Floor
	CvtFloatInt

	MulAdd132 // r = a*c+b
	MulAdd213 // r = b*a+c
	MulAdd231 // r = b*c+a
	MulSub132 // r = a*c-b
	MulSub213 // r = b*a-c
	MulSub231 // r = b*c-a

	Equal
	NotEqual
	Less
	LessEqual
	Greater
	GreaterEqual

	And
	Or
	Not
	AndNot
	Xor

	Sum
	Product
	MaxReduce
	MinReduce
)

var opNames = map[OpType]string{
	Nop: "Mov", Add: "Add", Sub: "Sub", Mul: "Mul", Div: "Div", Min: "Min", Max: "Max",
	Relu: "Relu", Log: "Log", Exp: "Exp", Sigmoid: "Sigmoid", Tanh: "Tanh",
	Sqrt: "Sqrt", Rsqrt: "Rsqrt", Reciprocal: "Reciprocal", Neg: "Neg",
	Floor: "Floor", CvtFloatInt: "CvtFloatInt",
	MulAdd132: "MulAdd132", MulAdd213: "MulAdd213", MulAdd231: "MulAdd231",
	MulSub132: "MulSub132", MulSub213: "MulSub213", MulSub231: "MulSub231",
	Equal: "Equal", NotEqual: "NotEqual", Less: "Less", LessEqual: "LessEqual",
	Greater: "Greater", GreaterEqual: "GreaterEqual",
	And: "And", Or: "Or", Not: "Not", AndNot: "AndNot", Xor: "Xor",
	Sum: "Sum", Product: "Product", MaxReduce: "MaxReduce", MinReduce: "MinReduce",
}

var namesToOp = func() map[string]OpType {
	m := make(map[string]OpType, len(opNames))
	for t, n := range opNames {
		m[n] = t
	}
	return m
}()

func (t OpType) String() string {
	if n, ok := opNames[t]; ok {
		return n
	}
	return "Invalid"
}

// ParseOpType looks up an OpType by its recipe name.
func ParseOpType(name string) (OpType, bool) {
	t, ok := namesToOp[name]
	return t, ok
}

// Reduction reports whether t produces a reduced (scalar-per-lane-group)
// result that may not be consumed by any further op in the same fused
// expression.
func (t OpType) Reduction() bool {
	switch t {
	case Sum, Product, MaxReduce, MinReduce:
		return true
	default:
		return false
	}
}

// Commutative reports whether the two-argument op's operands may be
// swapped without changing the result.
func (t OpType) Commutative() bool {
	switch t {
	case Add, Mul, Min, Max, Equal, NotEqual, And, Or:
		return true
	default:
		return false
	}
}

// Var is a variable in the expression: an SSA value with a role
// (Input/Const/Output/Temp/Number) and a sigil-numbered id.
type Var struct {
	Type VarType
	ID   int

	Producer  *Op
	Consumers []*Op

	// First/Last are positions (indices into Expression.Ops) bounding
	// this variable's live range. Populated by
	// Expression.computeLiveRanges; the generator does not read them and
	// hoists nothing out of its loop.
	First, Last int
}

// Inlined reports whether v is a temporary used exactly once: such
// variables are emitted as nested sub-expressions rather than as a
// separate assignment statement.
func (v *Var) Inlined() bool {
	return v.Type == Temp && len(v.Consumers) == 1
}

func (v *Var) String() string {
	return string(v.Type.sigil()) + itoa(v.ID)
}

func (v *Var) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder
	return e.AppendString(b, v.String())
}

// Op is one operation in the expression: result = type(args...).
type Op struct {
	Type   OpType
	Result *Var
	Args   []*Var
}

// NoOp reports whether this is an identity move whose source and
// result have already been assigned the same register (only
// meaningful post register-allocation; always false beforehand).
func (o *Op) NoOp() bool {
	return o.Type == Nop && len(o.Args) == 1 && o.Args[0] == o.Result
}

func (o *Op) String() string {
	s := o.Type.String() + "("
	for i, a := range o.Args {
		if i > 0 {
			s += ","
		}
		s += a.String()
	}
	return s + ")"
}

// Expression is a flat SSA list of Vars and Ops, the parsed form of a
// recipe string.
type Expression struct {
	Vars []*Var
	Ops  []*Op

	byKey map[varKey]*Var
}

type varKey struct {
	t  VarType
	id int
}

// New returns an empty expression.
func New() *Expression {
	return &Expression{byKey: map[varKey]*Var{}}
}

// Var returns the variable of the given type/id, creating it on first
// reference.
func (e *Expression) Var(t VarType, id int) *Var {
	k := varKey{t, id}

	if v, ok := e.byKey[k]; ok {
		return v
	}

	v := &Var{Type: t, ID: id}
	e.byKey[k] = v
	e.Vars = append(e.Vars, v)

	return v
}

// NewTemp allocates a fresh temporary variable with a unique id.
func (e *Expression) NewTemp() *Var {
	id := 0
	for {
		if _, ok := e.byKey[varKey{Temp, id}]; !ok {
			break
		}
		id++
	}

	return e.Var(Temp, id)
}

// Emit appends an op computing typ(args...) into result, wiring up
// producer/consumer links.
func (e *Expression) Emit(typ OpType, result *Var, args ...*Var) *Op {
	op := &Op{Type: typ, Result: result, Args: append([]*Var(nil), args...)}
	result.Producer = op

	for _, a := range args {
		a.Consumers = append(a.Consumers, op)
	}

	e.Ops = append(e.Ops, op)

	return op
}

// Inputs returns the Input-type variables, ordered by id.
func (e *Expression) Inputs() []*Var { return e.varsOfType(Input) }

// Outputs returns the Output-type variables, ordered by id.
func (e *Expression) Outputs() []*Var { return e.varsOfType(Output) }

// Consts returns the Const-type variables, ordered by id.
func (e *Expression) Consts() []*Var { return e.varsOfType(Const) }

func (e *Expression) varsOfType(t VarType) []*Var {
	var out []*Var

	for _, v := range e.Vars {
		if v.Type == t {
			out = insertSorted(out, v)
		}
	}

	return out
}

func insertSorted(vs []*Var, v *Var) []*Var {
	i := 0
	for i < len(vs) && vs[i].ID < v.ID {
		i++
	}

	vs = append(vs, nil)
	copy(vs[i+1:], vs[i:])
	vs[i] = v

	return vs
}

// computeLiveRanges fills in each variable's First/Last op index.
func (e *Expression) computeLiveRanges() {
	for _, v := range e.Vars {
		v.First, v.Last = -1, -1
	}

	touch := func(v *Var, pos int) {
		if v.First == -1 {
			v.First = pos
		}
		v.Last = pos
	}

	for i, op := range e.Ops {
		touch(op.Result, i)

		for _, a := range op.Args {
			touch(a, i)
		}
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}

	neg := n < 0
	if neg {
		n = -n
	}

	var buf [20]byte
	i := len(buf)

	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}

	if neg {
		i--
		buf[i] = '-'
	}

	return string(buf[i:])
}
