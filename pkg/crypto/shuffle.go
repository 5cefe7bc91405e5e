package crypto

import (
	"crypto/rand"
	"encoding/binary"
)

// ShuffleGenerator yields a uniformly random permutation of [0, N) one value
// at a time without materializing the full range. Swapped-out values are
// tracked in a sparse map, so drawing k values from a huge range costs O(k).
type ShuffleGenerator struct {
	n        uint64
	count    uint64
	selected map[uint64]uint64

	// randFn returns a uniform value in [0, max]. Overridable for tests.
	randFn func(max uint64) uint64
}

// NewShuffleGenerator returns a generator over [0, n).
func NewShuffleGenerator(n uint64) *ShuffleGenerator {
	return &ShuffleGenerator{
		n:        n,
		count:    n,
		selected: make(map[uint64]uint64),
		randFn:   uniformUint64,
	}
}

// newShuffleGeneratorRand returns a generator with a custom random source.
func newShuffleGeneratorRand(n uint64, randFn func(max uint64) uint64) *ShuffleGenerator {
	g := NewShuffleGenerator(n)
	g.randFn = randFn
	return g
}

// Empty reports whether every value of the range has been returned.
func (g *ShuffleGenerator) Empty() bool {
	return g.count == 0
}

// Next returns a uniformly random value from [0, N) that has not been
// returned before, and false once the range is exhausted.
func (g *ShuffleGenerator) Next() (uint64, bool) {
	if g.count == 0 {
		return 0, false
	}

	g.count--
	value := g.randFn(g.count)

	rval, ok := g.selected[g.count]
	if !ok {
		rval = g.count
	}

	if prev, ok := g.selected[value]; ok {
		g.selected[value] = rval
		value = prev
	} else {
		g.selected[value] = rval
	}

	return value, true
}

// Reset restores the full range.
func (g *ShuffleGenerator) Reset() {
	g.count = g.n
	g.selected = make(map[uint64]uint64)
}

// uniformUint64 returns a uniform value in [0, max] using rejection
// sampling over the crypto entropy source.
func uniformUint64(max uint64) uint64 {
	if max == 0 {
		return 0
	}
	if max == ^uint64(0) {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			panic("crypto: entropy source failed: " + err.Error())
		}
		return binary.LittleEndian.Uint64(buf[:])
	}
	// Smallest power-of-two style bound rejection: draw until below the
	// largest multiple of (max+1) that fits in a uint64.
	span := max + 1
	limit := ^uint64(0) - ^uint64(0)%span
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			panic("crypto: entropy source failed: " + err.Error())
		}
		v := binary.LittleEndian.Uint64(buf[:])
		if span&(span-1) == 0 {
			return v & (span - 1)
		}
		if v < limit {
			return v % span
		}
	}
}
