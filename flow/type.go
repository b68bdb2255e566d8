package flow

import "fmt"

// Type is the element type of a flow Variable, mirroring the fixed
// enumeration a compiled Tensor inherits its element type from.
type Type int

const (
	Invalid Type = iota
	Float32
	Float64
	Int8
	Int16
	Int32
	Int64
	UInt8
	UInt16
	Bool
	Complex64
	Complex128
	Half
	BFloat16
	QInt8
	QInt16
	QInt32
	QUInt8
	QUInt16
)

// Traits describes the static properties of a Type, the Go analogue of
// the original's TypeTraits lookup table.
type Traits struct {
	Type Type
	Name string
	Size int // bytes per element
}

var traits = [...]Traits{
	Invalid:    {Invalid, "invalid", 0},
	Float32:    {Float32, "float32", 4},
	Float64:    {Float64, "float64", 8},
	Int8:       {Int8, "int8", 1},
	Int16:      {Int16, "int16", 2},
	Int32:      {Int32, "int32", 4},
	Int64:      {Int64, "int64", 8},
	UInt8:      {UInt8, "uint8", 1},
	UInt16:     {UInt16, "uint16", 2},
	Bool:       {Bool, "bool", 1},
	Complex64:  {Complex64, "complex64", 8},
	Complex128: {Complex128, "complex128", 16},
	Half:       {Half, "half", 2},
	BFloat16:   {BFloat16, "bfloat16", 2},
	QInt8:      {QInt8, "qint8", 1},
	QInt16:     {QInt16, "qint16", 2},
	QInt32:     {QInt32, "qint32", 4},
	QUInt8:     {QUInt8, "quint8", 1},
	QUInt16:    {QUInt16, "quint16", 2},
}

// TypeTraits looks up the traits for t. An out-of-range type yields the
// traits of Invalid, named "invalid".
func TypeTraits(t Type) Traits {
	if int(t) < 0 || int(t) >= len(traits) {
		return Traits{Type: Invalid, Name: "invalid"}
	}

	return traits[t]
}

func (t Type) String() string { return TypeTraits(t).String() }

func (tr Traits) String() string { return tr.Name }

// Valid reports whether t is a recognized, non-Invalid type.
func (t Type) Valid() bool { return t != Invalid && int(t) < len(traits) }

// Size returns the per-element byte size of t, 0 if unknown.
func (t Type) Size() int { return TypeTraits(t).Size }

// IsFloat reports whether t is one of the floating point types.
func (t Type) IsFloat() bool {
	switch t {
	case Float32, Float64, Half, BFloat16:
		return true
	default:
		return false
	}
}

func (t Traits) GoString() string {
	return fmt.Sprintf("Type(%s, size=%d)", t.Name, t.Size)
}
