package bits

import (
	mathbits "math/bits"

	"github.com/evsync/evsync/internal/pkg/event"
)

// Iter yields the members of a Set (or of the symmetric difference of two
// sets) in ascending code order.
//
// It scans the word array low to high, skipping all-zero words, and
// extracts set bits from a working copy with a trailing-zero count, so it
// never emits gaps and never revisits a bit. Iter is a plain value: a copy
// continues independently from the same position.
type Iter struct {
	a, b []Word // when b is non-nil, words are a[i]^b[i]

	pos       int  // index of the next word to load
	word      Word // working copy of the current word
	bitsLeft  int  // bits of the current word not yet consumed
	nextIndex int  // code index of the lowest bit in word
}

func (it *Iter) nextWord() (Word, bool) {
	if it.pos >= len(it.a) {
		return 0, false
	}
	w := it.a[it.pos]
	if it.b != nil {
		w ^= it.b[it.pos]
	}
	it.pos++
	return w, true
}

// Next returns the next member, or ok=false when the sequence is done.
func (it *Iter) Next() (event.Code, bool) {
	if it.word == 0 {
		it.nextIndex += it.bitsLeft
		it.bitsLeft = 0
	}
	if it.bitsLeft == 0 {
		// Refill the working word with one that has at least one set bit.
		for {
			w, ok := it.nextWord()
			if !ok {
				return 0, false
			}
			if w == 0 {
				it.nextIndex += wordBits
				continue
			}
			it.word = w
			break
		}
		it.bitsLeft = wordBits
	}

	zeros := mathbits.TrailingZeros64(it.word)
	index := it.nextIndex + zeros

	// Shift the found bit and its preceding zeros out of the working copy.
	// Two shifts, since zeros+1 can reach the word width.
	it.word >>= uint(zeros)
	it.word >>= 1

	it.nextIndex += zeros + 1
	it.bitsLeft -= zeros + 1

	return event.Code(index), true
}
