// Package bitset provides dense fixed-width bit vectors used for
// overlap computation between input vectors and column connectivity masks.
package bitset

import "math/bits"

const wordBits = 64

// Bitset is a fixed-width bit vector backed by 64-bit words.
// The zero value is not usable; create one with New.
type Bitset struct {
	words []uint64
	n     int
}

// New creates a bitset holding n bits, all clear.
func New(n int) *Bitset {
	return &Bitset{
		words: make([]uint64, (n+wordBits-1)/wordBits),
		n:     n,
	}
}

// Len returns the number of bits the set holds.
func (b *Bitset) Len() int {
	return b.n
}

// Set sets bit i. Out-of-range indices are ignored.
func (b *Bitset) Set(i int) {
	if i < 0 || i >= b.n {
		return
	}
	b.words[i/wordBits] |= 1 << uint(i%wordBits)
}

// Clear clears bit i. Out-of-range indices are ignored.
func (b *Bitset) Clear(i int) {
	if i < 0 || i >= b.n {
		return
	}
	b.words[i/wordBits] &^= 1 << uint(i%wordBits)
}

// Test reports whether bit i is set.
func (b *Bitset) Test(i int) bool {
	if i < 0 || i >= b.n {
		return false
	}
	return b.words[i/wordBits]&(1<<uint(i%wordBits)) != 0
}

// Reset clears all bits.
func (b *Bitset) Reset() {
	for i := range b.words {
		b.words[i] = 0
	}
}

// Count returns the number of set bits.
func (b *Bitset) Count() int {
	c := 0
	for _, w := range b.words {
		c += bits.OnesCount64(w)
	}
	return c
}

// OverlapCount returns the number of positions set in both b and other.
// It is the inner product of two binary vectors computed word-wise.
// Both sets must have the same width.
func (b *Bitset) OverlapCount(other *Bitset) int {
	c := 0
	for i, w := range b.words {
		c += bits.OnesCount64(w & other.words[i])
	}
	return c
}

// Clone returns an independent copy of the bitset.
func (b *Bitset) Clone() *Bitset {
	c := &Bitset{
		words: make([]uint64, len(b.words)),
		n:     b.n,
	}
	copy(c.words, b.words)
	return c
}
