// Package mng implements the per-disk block allocator, the block manager
// facade, allocation strategies, the generic typed block, the prefetch and
// write pools, and the prefetch scheduler.
//
// Reference: original_source mng/diskallocator.cpp and the mng/ headers
// (block_manager.h, bid.h, typed_block.h).
package mng

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aalhour/extmem/internal/errs"
	"github.com/aalhour/extmem/internal/logging"
)

// extent is a free byte range [start, start+length) in one file.
type extent struct {
	start  int64
	length int64
}

// GrowFunc is called by a DiskAllocator when auto-grow is enabled and the
// free-extent set cannot satisfy an allocation. It must grow the backing
// file by at least minBytes and return the number of bytes the file grew
// by (always >= minBytes on success).
type GrowFunc func(minBytes int64) (int64, error)

// DiskAllocator manages the free extents of one backing file: a sorted,
// disjoint, non-adjacent set of (start, length) ranges. Reference: spec
// §4.6.
//
// free is kept sorted by start so Free's merge step only ever has to look
// at its immediate neighbors — the same asymptotic shape as the original's
// std::map-keyed sortseq, expressed here as a slice plus sort.Search.
type DiskAllocator struct {
	mu   sync.Mutex
	free []extent

	capacity  int64
	autoGrow  bool
	grow      GrowFunc
	diskIndex int

	usedBytes int64

	log logging.Logger
}

// NewDiskAllocator constructs an allocator whose file starts with a single
// free extent covering [0, capacity). grow may be nil if autoGrow is false.
func NewDiskAllocator(diskIndex int, capacity int64, autoGrow bool, grow GrowFunc, log logging.Logger) *DiskAllocator {
	return &DiskAllocator{
		free:      []extent{{start: 0, length: capacity}},
		capacity:  capacity,
		autoGrow:  autoGrow,
		grow:      grow,
		diskIndex: diskIndex,
		log:       logging.OrDefault(log),
	}
}

// Allocate reserves count blocks of blockSize bytes each, returning their
// offsets in ascending byte order: it scans free extents in ascending order
// and carves consecutive chunks from each extent's start, so blocks are
// contiguous within one extent but may span several extents.
func (a *DiskAllocator) Allocate(blockSize int64, count int) ([]int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	offsets, err := a.allocateLocked(blockSize, count)
	if err == nil {
		return offsets, nil
	}
	if !a.autoGrow || a.grow == nil {
		return nil, err
	}

	remaining := int64(count)*blockSize - a.freeBytesLocked()
	if remaining <= 0 {
		remaining = blockSize
	}
	grown, growErr := a.grow(remaining)
	if growErr != nil {
		return nil, &errs.BadExtAllocError{BlockSize: int(blockSize), Count: count, Disk: a.diskIndex}
	}
	a.appendFreeLocked(a.capacity, grown)
	a.capacity += grown
	a.log.Debugf(logging.NSAlloc+"disk %d: grew by %d bytes to satisfy %d blocks of %d", a.diskIndex, grown, count, blockSize)

	return a.allocateLocked(blockSize, count)
}

func (a *DiskAllocator) allocateLocked(blockSize int64, count int) ([]int64, error) {
	if count == 0 {
		return nil, nil
	}
	offsets := make([]int64, 0, count)
	newFree := make([]extent, 0, len(a.free))

	touched := 0
	for _, ext := range a.free {
		touched++
		for ext.length >= blockSize && len(offsets) < count {
			offsets = append(offsets, ext.start)
			ext.start += blockSize
			ext.length -= blockSize
		}
		if ext.length > 0 {
			newFree = append(newFree, ext)
		}
		if len(offsets) == count {
			break
		}
	}

	if len(offsets) < count {
		return nil, &errs.BadExtAllocError{BlockSize: int(blockSize), Count: count, Disk: a.diskIndex}
	}

	newFree = append(newFree, a.free[touched:]...)
	a.free = newFree
	a.usedBytes += int64(count) * blockSize
	return offsets, nil
}

func (a *DiskAllocator) freeBytesLocked() int64 {
	var total int64
	for _, e := range a.free {
		total += e.length
	}
	return total
}

func (a *DiskAllocator) appendFreeLocked(start, length int64) {
	if n := len(a.free); n > 0 && a.free[n-1].start+a.free[n-1].length == start {
		a.free[n-1].length += length
		return
	}
	a.free = append(a.free, extent{start: start, length: length})
	sort.Slice(a.free, func(i, j int) bool { return a.free[i].start < a.free[j].start })
}

// Free returns count blocks of blockSize bytes starting at offset to the
// free-extent set, merging with touching neighbors.
func (a *DiskAllocator) Free(offset, blockSize int64, count int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	length := blockSize * int64(count)
	if offset < 0 || length <= 0 || offset+length > a.capacity {
		err := &errs.InvariantError{What: fmt.Sprintf("disk %d: free(%d, %d) out of bounds (capacity %d)", a.diskIndex, offset, length, a.capacity)}
		return err.Raise(a.log)
	}

	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].start >= offset })

	// Check for overlap with predecessor or successor — a logic error.
	if i > 0 {
		pred := a.free[i-1]
		if pred.start+pred.length > offset {
			a.dumpLocked()
			err := &errs.InvariantError{What: fmt.Sprintf("disk %d: double free at offset %d overlaps predecessor extent (%d,%d)", a.diskIndex, offset, pred.start, pred.length)}
			return err.Raise(a.log)
		}
	}
	if i < len(a.free) {
		succ := a.free[i]
		if offset+length > succ.start {
			a.dumpLocked()
			err := &errs.InvariantError{What: fmt.Sprintf("disk %d: double free at offset %d overlaps successor extent (%d,%d)", a.diskIndex, offset, succ.start, succ.length)}
			return err.Raise(a.log)
		}
	}

	merged := extent{start: offset, length: length}
	mergeWithPred := i > 0 && a.free[i-1].start+a.free[i-1].length == offset
	mergeWithSucc := i < len(a.free) && offset+length == a.free[i].start

	switch {
	case mergeWithPred && mergeWithSucc:
		a.free[i-1].length += length + a.free[i].length
		a.free = append(a.free[:i], a.free[i+1:]...)
	case mergeWithPred:
		a.free[i-1].length += length
	case mergeWithSucc:
		a.free[i].start = offset
		a.free[i].length += length
	default:
		a.free = append(a.free, extent{})
		copy(a.free[i+1:], a.free[i:])
		a.free[i] = merged
	}

	a.usedBytes -= length
	return nil
}

// FreeBytes returns the total bytes currently free.
func (a *DiskAllocator) FreeBytes() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.freeBytesLocked()
}

// UsedBytes returns the total bytes currently allocated.
func (a *DiskAllocator) UsedBytes() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usedBytes
}

// Capacity returns the file's current capacity (grows over time if
// auto-grow fired).
func (a *DiskAllocator) Capacity() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capacity
}

// Extents returns a snapshot of the free-extent set as (start, length)
// pairs sorted by start, for tests and diagnostics.
func (a *DiskAllocator) Extents() [][2]int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([][2]int64, len(a.free))
	for i, e := range a.free {
		out[i] = [2]int64{e.start, e.length}
	}
	return out
}

func (a *DiskAllocator) dumpLocked() {
	a.log.Errorf(logging.NSAlloc + "free regions dump:")
	var total int64
	for _, e := range a.free {
		a.log.Errorf(logging.NSAlloc+"free chunk: begin=%d size=%d", e.start, e.length)
		total += e.length
	}
	a.log.Errorf(logging.NSAlloc+"total free bytes: %d", total)
}
