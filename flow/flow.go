// Package flow implements the input dataflow graph the compiler consumes:
// Variables and Operations connected into a DAG, plus the handful of
// structural rewrites (Find, Eliminate, Fuse, RemoveOperation,
// AllocateMemory) the transformer pipeline drives.
package flow

import (
	"tlog.app/go/errors"
)

// Variable is a node in the flow graph: a named, typed, shaped value
// with at most one producing Operation and any number of consumers.
type Variable struct {
	Name  string
	Type  Type
	Shape Shape
	Data  []byte // non-nil iff constant

	Producer  *Operation
	Consumers []*Operation

	index int
	flow  *Flow
}

// Input reports whether the variable has no producer.
func (v *Variable) Input() bool { return v.Producer == nil }

// Constant reports whether the variable owns data.
func (v *Variable) Constant() bool { return v.Data != nil }

// Output reports whether the variable is externally visible.
func (v *Variable) Output() bool {
	return v.flow != nil && v.flow.outputs[v]
}

// Operation is a node in the flow graph representing one computation:
// a typed, named op with ordered input/output variable lists and a
// string attribute map.
type Operation struct {
	Name string
	Type string

	Inputs  []*Variable
	Outputs []*Variable
	Attrs   map[string]string
	Task    int

	index int
	flow  *Flow
}

// Attr returns the named attribute, "" if absent.
func (o *Operation) Attr(name string) string { return o.Attrs[name] }

// HasAttr reports whether the named attribute is present.
func (o *Operation) HasAttr(name string) bool {
	_, ok := o.Attrs[name]
	return ok
}

// SetAttr sets the named attribute.
func (o *Operation) SetAttr(name, value string) {
	if o.Attrs == nil {
		o.Attrs = map[string]string{}
	}

	o.Attrs[name] = value
}

// InputIndex returns the position of v in o's input list, -1 if absent.
func (o *Operation) InputIndex(v *Variable) int {
	for i, x := range o.Inputs {
		if x == v {
			return i
		}
	}

	return -1
}

// Flow is the compiler's input: a DAG of Variables and Operations, owned
// by the caller. The compiler consumes (and may mutate) a Flow in
// place; it never allocates a second copy of the graph.
type Flow struct {
	Vars []*Variable
	Ops  []*Operation

	outputs map[*Variable]bool
}

// New returns an empty flow graph.
func New() *Flow {
	return &Flow{outputs: map[*Variable]bool{}}
}

// NewVariable adds and returns a new, producer-less variable.
func (f *Flow) NewVariable(name string, t Type, shape Shape) *Variable {
	v := &Variable{Name: name, Type: t, Shape: shape, flow: f, index: len(f.Vars)}
	f.Vars = append(f.Vars, v)

	return v
}

// NewOperation adds and returns a new, edge-less operation.
func (f *Flow) NewOperation(name, opType string) *Operation {
	o := &Operation{Name: name, Type: opType, flow: f, index: len(f.Ops)}
	f.Ops = append(f.Ops, o)

	return o
}

// MarkOutput marks v as externally visible.
func (f *Flow) MarkOutput(v *Variable) { f.outputs[v] = true }

// AddInput appends v to o's input list and records o as a consumer.
func (f *Flow) AddInput(o *Operation, v *Variable) {
	o.Inputs = append(o.Inputs, v)
	v.Consumers = append(v.Consumers, o)
}

// AddOutput appends v to o's output list and sets v's producer.
func (f *Flow) AddOutput(o *Operation, v *Variable) {
	o.Outputs = append(o.Outputs, v)
	v.Producer = o
}

// AllocateMemory attaches data to v, turning it into a constant. The
// flow owns the returned byte slice's identity for the variable's
// lifetime; constant variables are never written by generated code.
func (f *Flow) AllocateMemory(v *Variable, data []byte) {
	v.Data = data
}

// RemoveOperation deletes op from the flow, first removing op from the
// consumer list of each of its inputs and clearing op.Inputs. It does
// not touch op's outputs: a variable op produced still names op as its
// producer until the caller rewires or removes it.
func (f *Flow) RemoveOperation(op *Operation) {
	for i, x := range op.Inputs {
		removeConsumer(x, op)
		op.Inputs[i] = nil
	}

	for i := range f.Ops {
		if f.Ops[i] == op {
			f.Ops = append(f.Ops[:i], f.Ops[i+1:]...)
			break
		}
	}
}

func removeConsumer(v *Variable, op *Operation) {
	for i, c := range v.Consumers {
		if c == op {
			v.Consumers = append(v.Consumers[:i], v.Consumers[i+1:]...)
			return
		}
	}
}

// RemoveVariable deletes an orphaned (no producer, no consumers)
// variable from the flow.
func (f *Flow) RemoveVariable(v *Variable) {
	for i := range f.Vars {
		if f.Vars[i] == v {
			f.Vars = append(f.Vars[:i], f.Vars[i+1:]...)
			break
		}
	}

	delete(f.outputs, v)
}

// Eliminate removes op from the flow, bypassing it: op must have
// exactly one input and one output, and every consumer of op's output
// is rewired to read op's input directly instead.
func (f *Flow) Eliminate(op *Operation) error {
	if len(op.Inputs) != 1 || len(op.Outputs) != 1 {
		return errors.New("eliminate %s: need exactly 1 input and 1 output, got %d/%d", op.Name, len(op.Inputs), len(op.Outputs))
	}

	in, out := op.Inputs[0], op.Outputs[0]

	if f.outputs[out] {
		// out's identity must survive under its own name, but
		// Eliminate makes op disappear entirely, so an externally
		// visible output can't be rewired away from it.
		return errors.New("eliminate %s: output %s is externally visible", op.Name, out.Name)
	}

	for _, c := range append([]*Operation(nil), out.Consumers...) {
		for i, x := range c.Inputs {
			if x == out {
				c.Inputs[i] = in
			}
		}

		removeConsumer(out, c)
		in.Consumers = append(in.Consumers, c)
	}

	removeConsumer(in, op)
	f.RemoveOperation(op)
	f.RemoveVariable(out)

	return nil
}

// Fuse merges operations a and b into a single new operation of
// newType. a must be the producer of (at least one of) b's inputs.
// The fused operation's inputs are the union of a's and b's inputs,
// excluding the edge(s) directly connecting a to b; its outputs are
// b's outputs plus a's outputs, except that an output of a whose only
// consumer is b is dropped unless preserveOutputs is true.
func (f *Flow) Fuse(a, b *Operation, newType string, preserveOutputs bool) (*Operation, error) {
	internal := map[*Variable]bool{}
	connected := false

	for _, v := range a.Outputs {
		if soleConsumerIs(v, b) {
			internal[v] = true
		}

		if b.InputIndex(v) >= 0 {
			connected = true
		}
	}

	if !connected {
		return nil, errors.New("fuse %s,%s: no internal edge between them", a.Name, b.Name)
	}

	fused := f.NewOperation(a.Name+"+"+b.Name, newType)
	fused.Task = b.Task

	seen := map[*Variable]bool{}

	for _, v := range a.Inputs {
		if seen[v] {
			continue
		}

		seen[v] = true
		f.AddInput(fused, v)
	}

	for _, v := range b.Inputs {
		if v.Producer == a || seen[v] {
			continue
		}

		seen[v] = true
		f.AddInput(fused, v)
	}

	for _, v := range a.Outputs {
		if internal[v] && !preserveOutputs && len(v.Consumers) <= 1 {
			continue
		}

		f.AddOutput(fused, v)
		v.Producer = fused
	}

	for _, v := range b.Outputs {
		f.AddOutput(fused, v)
		v.Producer = fused
	}

	for v := range internal {
		removeConsumer(v, b)

		if v.Producer == fused {
			continue
		}

		// v was dropped from fused's outputs (dead internal temp): drop it
		// entirely from the flow, it has no remaining consumers or producer.
		f.RemoveVariable(v)
	}

	f.RemoveOperation(a)
	f.RemoveOperation(b)

	return fused, nil
}

func soleConsumerIs(v *Variable, op *Operation) bool {
	return len(v.Consumers) == 1 && v.Consumers[0] == op
}
