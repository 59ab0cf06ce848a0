package vfs

import (
	"fmt"
	"sync"

	"github.com/aalhour/extmem/internal/errs"
)

// poisonByte fills discarded regions of a MemFile to deter use-after-free.
// Scrubbing is implemented on the in-memory backend only; FilePerBlockFile
// removes the block's file on Discard, and the other backends treat Discard
// as a no-op (see DESIGN.md).
const poisonByte = 0xDD

// MemFile is an in-memory backend, mainly for tests: it never touches the
// OS filesystem, growing and shrinking a plain byte slice.
//
// Reference: original_source io/mem_file.cpp.
type MemFile struct {
	mu          sync.Mutex
	data        []byte
	queueID     int
	allocatorID int
}

// NewMemFile creates an empty MemFile.
func NewMemFile(opts FileOptions) *MemFile {
	return &MemFile{queueID: opts.QueueID, allocatorID: opts.AllocatorID}
}

func (f *MemFile) Size() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.data)), nil
}

func (f *MemFile) SetSize(size int64) error {
	if size < 0 {
		return errs.NewIOError("set_size", "", fmt.Errorf("negative size %d", size))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if int64(len(f.data)) == size {
		return nil
	}
	grown := make([]byte, size)
	copy(grown, f.data)
	f.data = grown
	return nil
}

func (f *MemFile) Serve(buf []byte, offset int64, op OpType) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	end := offset + int64(len(buf))
	if offset < 0 || end > int64(len(f.data)) {
		return errs.NewIOError("serve", "", fmt.Errorf("range [%d,%d) out of bounds (size %d)", offset, end, len(f.data)))
	}

	switch op {
	case Read:
		copy(buf, f.data[offset:end])
	case Write:
		copy(f.data[offset:end], buf)
	default:
		return fmt.Errorf("vfs: unknown op %v", op)
	}
	return nil
}

// Discard scrubs [offset, offset+length) with poisonByte.
func (f *MemFile) Discard(offset, length int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	end := offset + length
	if offset < 0 || end > int64(len(f.data)) {
		return errs.NewIOError("discard", "", fmt.Errorf("range [%d,%d) out of bounds (size %d)", offset, end, len(f.data)))
	}
	region := f.data[offset:end]
	for i := range region {
		region[i] = poisonByte
	}
	return nil
}

func (f *MemFile) IOType() string { return "memory" }

func (f *MemFile) QueueID() int { return f.queueID }

func (f *MemFile) AllocatorID() int { return f.allocatorID }

func (f *MemFile) Close() error { return nil }
