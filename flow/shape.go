package flow

import (
	"strings"

	"tlog.app/go/errors"
)

// Unbounded marks a dimension as an unbounded batch dimension.
const Unbounded = -1

// Shape is an ordered sequence of dimensions. A dimension equal to
// Unbounded means "unbounded batch" and only ever appears at rank 0 in
// flow variables produced by this package. Nothing resolves it to a
// concrete batch size: compiled Tensors copy the shape unchanged, and
// Elements (and so the planner's sizes) counts it as 1.
type Shape struct {
	Dims []int
}

// NewShape builds a Shape from the given dimensions.
func NewShape(dims ...int) Shape {
	return Shape{Dims: append([]int(nil), dims...)}
}

// Rank is the number of dimensions.
func (s Shape) Rank() int { return len(s.Dims) }

// Elements returns the total element count, the product of all
// dimensions. An unbounded dimension counts as 1 for this purpose;
// callers needing the true runtime count must resolve the batch size
// first.
func (s Shape) Elements() int {
	n := 1

	for _, d := range s.Dims {
		if d == Unbounded {
			continue
		}

		n *= d
	}

	return n
}

// Scalar reports whether the shape has exactly one element.
func (s Shape) Scalar() bool { return s.Elements() == 1 }

// Dim returns dimension d, counted from the first dimension, or 1 if d
// is out of range.
func (s Shape) Dim(d int) int {
	i := len(s.Dims) - s.Rank() + d
	if i < 0 || i >= len(s.Dims) {
		return 1
	}

	return s.Dims[i]
}

// Equal reports exact dimension-for-dimension equality.
func (s Shape) Equal(o Shape) bool {
	if len(s.Dims) != len(o.Dims) {
		return false
	}

	for i, d := range s.Dims {
		if d != o.Dims[i] {
			return false
		}
	}

	return true
}

// BroadcastCompatible reports whether s and o can appear as operands of
// the same element-wise operation: trailing dimensions must either
// match or one of them must be 1.
func (s Shape) BroadcastCompatible(o Shape) bool {
	n := s.Rank()
	if o.Rank() > n {
		n = o.Rank()
	}

	for d := 0; d < n; d++ {
		a, b := s.dimFromEnd(d, n), o.dimFromEnd(d, n)

		if a != b && a != 1 && b != 1 {
			return false
		}
	}

	return true
}

func (s Shape) dimFromEnd(d, n int) int {
	i := len(s.Dims) - (n - d)
	if i < 0 || i >= len(s.Dims) {
		return 1
	}

	return s.Dims[i]
}

// CommonSize returns the inner-loop element count shared by the
// prototype shape and a (possibly scalar / broadcasting) operand shape:
// the operand's own element count if it broadcasts evenly into the
// prototype, else an error.
func CommonSize(prototype, operand Shape) (int, error) {
	if operand.Scalar() {
		return 1, nil
	}

	if !prototype.BroadcastCompatible(operand) {
		return 0, errors.New("shape %v not broadcast-compatible with prototype %v", operand, prototype)
	}

	return operand.Elements(), nil
}

func (s Shape) String() string {
	var b strings.Builder

	b.WriteByte('[')

	for i, d := range s.Dims {
		if i > 0 {
			b.WriteByte(',')
		}

		if d == Unbounded {
			b.WriteByte('?')
			continue
		}

		b.WriteString(itoa(d))
	}

	b.WriteByte(']')

	return b.String()
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
