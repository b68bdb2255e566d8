// Package bitset implements a small, growable bitset keyed by any
// integer-like type, used for the assembler's register-usage mask
// during code emission.
package bitset

import (
	"math/bits"

	"tlog.app/go/tlog/tlwire"
)

type Key interface {
	~int | ~int64 | ~uint | ~uint32
}

// Set is a bitset over values base, base+1, base+2, ... It grows on
// demand and its zero value (after MakeSet) is usable.
type Set[K Key] struct {
	base K
	b    []uint64
	b0   [2]uint64
}

var zeros = [8]uint64{}

// MakeSet returns an empty set whose members are offsets from base.
func MakeSet[K Key](base K) Set[K] {
	s := Set[K]{base: base}
	s.b = s.b0[:]

	return s
}

func (s Set[K]) Copy() Set[K] {
	c := MakeSet(s.base)

	c.grow(len(s.b))
	copy(c.b, s.b)

	return c
}

func (s *Set[K]) Set(k K) {
	i, j := s.ij(k)
	s.grow(i)
	s.b[i] |= 1 << j
}

func (s Set[K]) IsSet(k K) bool {
	i, j := s.ij(k)
	if i >= len(s.b) {
		return false
	}

	return s.b[i]&(1<<j) != 0
}

func (s Set[K]) Clear(k K) {
	i, j := s.ij(k)
	if i >= len(s.b) {
		return
	}

	s.b[i] &^= 1 << j
}

func (s *Set[K]) SetAll(ks ...K) {
	for _, k := range ks {
		s.Set(k)
	}
}

func (s *Set[K]) Merge(x Set[K]) {
	if s.base != x.base {
		panic(s)
	}

	s.grow(len(x.b))

	for i, w := range x.b {
		s.b[i] |= w
	}
}

func (s Set[K]) Intersect(x Set[K]) {
	if s.base != x.base {
		panic(s)
	}

	n := len(s.b)
	if m := len(x.b); m < n {
		n = m
	}

	for i, w := range x.b[:n] {
		s.b[i] &= w
	}
}

func (s Set[K]) Subtract(x Set[K]) {
	if s.base != x.base {
		panic(s)
	}

	n := len(s.b)
	if m := len(x.b); m < n {
		n = m
	}

	for i, w := range x.b[:n] {
		s.b[i] &^= w
	}
}

// Size returns the number of set members.
func (s Set[K]) Size() (r int) {
	for _, w := range s.b {
		r += bits.OnesCount64(w)
	}

	return r
}

// Range calls f with every set member in ascending order, stopping
// early if f returns false.
func (s Set[K]) Range(f func(k K) bool) {
	for i, w := range s.b {
		if w == 0 {
			continue
		}

		for j := bits.TrailingZeros64(w); j < bits.Len64(w); j++ {
			if w&(1<<j) == 0 {
				continue
			}

			if !f(s.base + K(i*64+j)) {
				return
			}
		}
	}
}

// FirstFree returns the lowest member not present in the set, starting
// the search at base.
func (s Set[K]) FirstFree() K {
	for i := 0; ; i++ {
		var w uint64
		if i < len(s.b) {
			w = s.b[i]
		}

		if w != ^uint64(0) {
			return s.base + K(i*64+bits.TrailingZeros64(^w))
		}
	}
}

func (s *Set[K]) Reset() {
	for i := 0; i < len(s.b); {
		i += copy(s.b[i:], zeros[:])
	}

	s.Strip()
}

func (s *Set[K]) Strip() {
	l := len(s.b)
	for l > 0 && s.b[l-1] == 0 {
		l--
	}

	s.b = s.b[:l]
}

func (s *Set[K]) ij(k K) (i, j int) {
	p := int(k - s.base)
	return p / 64, p % 64
}

func (s *Set[K]) grow(i int) {
	if s.b == nil {
		s.b = s.b0[:]
	}

	for i >= cap(s.b) {
		s.b = append(s.b[:cap(s.b)], 0)
	}

	s.b = s.b[:cap(s.b)]
}

// TlogAppend renders the set as a compact tlwire array of its members.
func (s Set[K]) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	if s.b == nil {
		return e.AppendNil(b)
	}

	b = e.AppendTag(b, tlwire.Array, -1)

	s.Range(func(k K) bool {
		b = e.AppendInt(b, int(k))
		return true
	})

	return e.AppendBreak(b)
}
