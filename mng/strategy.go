package mng

import "math/rand/v2"

// Strategy maps a sequence index to a disk index. Strategies are pure
// aside from RNG state and are cheap enough that
// callers may invoke them many times per allocation.
type Strategy func(i int) int

// SingleDisk always returns disk.
func SingleDisk(disk int) Strategy {
	return func(i int) int { return disk }
}

// Striping returns first+(i mod count).
func Striping(first, count int) Strategy {
	if count <= 0 {
		count = 1
	}
	return func(i int) int { return first + i%count }
}

// SimpleRandom draws one disk index per call from a single shared source,
// so the sequence is fixed after construction but is not a cyclic
// permutation the way RandomizedCyclic is.
func SimpleRandom(first, count int, seed uint64) Strategy {
	if count <= 0 {
		count = 1
	}
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return func(i int) int { return first + r.IntN(count) }
}

// FullyRandom draws a fresh value on every call from the default source
// (as opposed to SimpleRandom, which still draws fresh but from a
// strategy-owned source — the distinction is about source reuse, not
// determinism).
func FullyRandom(first, count int) Strategy {
	if count <= 0 {
		count = 1
	}
	return func(i int) int { return first + rand.IntN(count) }
}

// RandomizedCyclic precomputes a random permutation of 0..count and cycles
// through it, so repeated calls with the same i always return the same
// disk.
func RandomizedCyclic(first, count int, seed uint64) Strategy {
	if count <= 0 {
		count = 1
	}
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	perm := r.Perm(count)
	return func(i int) int { return first + perm[i%count] }
}

// WithOffset wraps base, shifting its disk index by delta modulo count.
func WithOffset(base Strategy, delta, count int) Strategy {
	if count <= 0 {
		count = 1
	}
	return func(i int) int {
		d := base(i) + delta
		d %= count
		if d < 0 {
			d += count
		}
		return d
	}
}
