// Package bits implements the fixed-capacity bit sets evdev uses to report
// device capabilities and state (pressed keys, lit LEDs, supported axes).
package bits

import (
	"fmt"
	mathbits "math/bits"
	"strings"

	"github.com/evsync/evsync/internal/pkg/event"
)

// Word is the storage unit of a Set.
type Word = uint64

const wordBits = 64

// Set is a bit vector keyed by event.Code, sized at construction for a
// category's declared maximum code. Bit i is set iff code i is a member.
// Copies share storage; use Clone for an independent set.
type Set struct {
	max   event.Code
	words []Word
}

// NewSet creates an empty set able to hold codes 0..max inclusive.
func NewSet(max event.Code) Set {
	return Set{
		max:   max,
		words: make([]Word, int(max)/wordBits+1),
	}
}

// FromBytes creates a set from a kernel byte bitmap, as returned by the
// EVIOCGKEY family of ioctls. Bytes beyond the set's capacity are ignored,
// as are bits above max within the last byte.
func FromBytes(max event.Code, raw []byte) Set {
	s := NewSet(max)
	for i, b := range raw {
		if b == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if b&(1<<bit) == 0 {
				continue
			}
			code := event.Code(i*8 + bit)
			if code > max {
				break
			}
			s.Insert(code)
		}
	}
	return s
}

// Max returns the largest code the set can hold.
func (s Set) Max() event.Code {
	return s.max
}

// Words exposes the underlying storage, for handing to device queries.
func (s Set) Words() []Word {
	return s.words
}

// Len returns the number of members.
func (s Set) Len() int {
	var n int
	for _, w := range s.words {
		n += mathbits.OnesCount64(w)
	}
	return n
}

// IsEmpty reports whether no bit is set.
func (s Set) IsEmpty() bool {
	for _, w := range s.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Contains reports membership of v. Codes above the set's maximum are
// never members.
func (s Set) Contains(v event.Code) bool {
	if v > s.max {
		return false
	}
	return s.words[int(v)/wordBits]&(1<<(int(v)%wordBits)) != 0
}

// Insert adds v and returns whether it was already present.
//
// Inserting a code above the set's maximum is a programmer error and
// panics.
func (s *Set) Insert(v event.Code) bool {
	if v > s.max {
		panic(fmt.Sprintf("bits: code %d out of range for set (max %d)", v, s.max))
	}
	present := s.Contains(v)
	s.words[int(v)/wordBits] |= 1 << (int(v) % wordBits)
	return present
}

// Remove clears v and returns whether it was present. Removing a code
// above the maximum is a no-op, since it cannot be a member.
func (s *Set) Remove(v event.Code) bool {
	if v > s.max {
		return false
	}
	present := s.Contains(v)
	s.words[int(v)/wordBits] &^= 1 << (int(v) % wordBits)
	return present
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	words := make([]Word, len(s.words))
	copy(words, s.words)
	return Set{max: s.max, words: words}
}

// Equal reports whether both sets have the same capacity and members.
func (s Set) Equal(o Set) bool {
	if s.max != o.max {
		return false
	}
	for i, w := range s.words {
		if w != o.words[i] {
			return false
		}
	}
	return true
}

// Iter returns an iterator yielding members in ascending code order.
// The iterator is a value; copying it snapshots its position.
func (s Set) Iter() Iter {
	return Iter{a: s.words}
}

// SymmetricDifference returns an iterator over codes present in exactly
// one of the two sets, in ascending order. Both sets must have the same
// capacity; mixing categories is a programmer error and panics.
func (s Set) SymmetricDifference(o Set) Iter {
	if s.max != o.max || len(s.words) != len(o.words) {
		panic(fmt.Sprintf("bits: symmetric difference of mismatched sets (max %d vs %d)", s.max, o.max))
	}
	return Iter{a: s.words, b: o.words}
}

// Values collects the members into a slice, in ascending order.
func (s Set) Values() []event.Code {
	var out []event.Code
	it := s.Iter()
	for {
		v, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

func (s Set) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, v := range s.Values() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d", v)
	}
	b.WriteByte('}')
	return b.String()
}
