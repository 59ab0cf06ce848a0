// Package mempool provides the aligned buffer allocator used by direct I/O
// file backends.
//
// This package is internal and not part of the public API.
//
// Reference: grounded on the shape of RocksDB's arena/allocator pooling
// (RockyardKV's internal/mempool.Pool used sync.Pool buckets keyed by
// size) generalized to also key by alignment, since direct I/O requires
// the buffer's address, not just its capacity, to satisfy an invariant.
package mempool

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/aalhour/extmem/internal/errs"
)

// MaxAllocSize bounds a single allocation. Go's runtime allocator panics
// rather than returning an error on exhaustion, so AlignedPool enforces this
// ceiling itself and reports exceeding it as a ResourceError —
// the observable stand-in for an out-of-memory condition.
const MaxAllocSize = 1 << 32 // 4 GiB

// ErrTooLarge is returned by Alloc when size exceeds MaxAllocSize.
var ErrTooLarge = errs.NewResourceError("mempool: alloc", fmt.Errorf("allocation exceeds %d bytes", MaxAllocSize))

// ErrBadAlignment is returned by Alloc when alignment is not a power of two.
var ErrBadAlignment = fmt.Errorf("mempool: alignment must be a power of two")

// AlignedPool allocates and recycles byte slices whose backing address is a
// multiple of a configured alignment. Go gives no direct control over an
// allocation's address, so each entry over-allocates by alignment-1 bytes and
// returns a sub-slice starting at the next aligned address, keeping a
// reference to the full backing array alive for the lifetime of the
// sub-slice (so the GC never reclaims it out from under a caller).
type AlignedPool struct {
	mu      sync.Mutex
	buckets map[bucketKey]*sync.Pool
}

type bucketKey struct {
	size      int
	alignment int
}

// aligned wraps a sliced buffer together with the backing array behind it
// (from the slice's start to its capacity), so a recycled entry can be
// realigned by Alloc.
type aligned struct {
	full  []byte
	slice []byte
}

// NewAlignedPool creates an empty AlignedPool. Buckets are created lazily on
// first use of a given (size, alignment) pair.
func NewAlignedPool() *AlignedPool {
	return &AlignedPool{buckets: make(map[bucketKey]*sync.Pool)}
}

// Alloc returns a byte slice of exactly size bytes whose address is a
// multiple of alignment. alignment must be a power of two.
func (p *AlignedPool) Alloc(size, alignment int) ([]byte, error) {
	if alignment <= 0 || alignment&(alignment-1) != 0 {
		return nil, ErrBadAlignment
	}
	if size < 0 || size > MaxAllocSize {
		return nil, ErrTooLarge
	}

	key := bucketKey{size: size, alignment: alignment}
	pool := p.bucketFor(key)

	a, _ := pool.Get().(*aligned)
	if a == nil || cap(a.full) < size+alignment-1 {
		a = newAligned(size, alignment)
	} else {
		a.slice = realign(a.full, size, alignment)
		clear(a.slice)
	}
	return a.slice, nil
}

// Free returns a buffer obtained from Alloc back to its bucket. Freeing a
// foreign buffer, or double-freeing, is undefined behavior; the caller
// must pass the same alignment it allocated with.
func (p *AlignedPool) Free(buf []byte, alignment int) {
	if buf == nil {
		return
	}
	key := bucketKey{size: len(buf), alignment: alignment}
	pool := p.bucketForExisting(key)
	if pool == nil {
		return
	}
	pool.Put(&aligned{full: buf[:cap(buf)], slice: buf})
}

func (p *AlignedPool) bucketFor(key bucketKey) *sync.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	pool, ok := p.buckets[key]
	if !ok {
		pool = &sync.Pool{}
		p.buckets[key] = pool
	}
	return pool
}

func (p *AlignedPool) bucketForExisting(key bucketKey) *sync.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buckets[key]
}

func newAligned(size, alignment int) *aligned {
	full := make([]byte, size+alignment-1)
	return &aligned{full: full, slice: realign(full, size, alignment)}
}

// realign returns the sub-slice of full, of length size, starting at the
// first address that is a multiple of alignment.
func realign(full []byte, size, alignment int) []byte {
	addr := uintptrOf(full)
	pad := (alignment - int(addr%uintptr(alignment))) % alignment
	return full[pad : pad+size]
}

func uintptrOf(buf []byte) uintptr {
	if len(buf) == 0 {
		return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	}
	return uintptr(unsafe.Pointer(&buf[0]))
}

// IsAligned reports whether addr is a multiple of alignment.
func IsAligned(addr, alignment int) bool {
	return alignment > 0 && addr%alignment == 0
}

// GlobalPool is the default process-wide aligned buffer pool.
var GlobalPool = NewAlignedPool()
