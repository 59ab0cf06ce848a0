package mng

import (
	"context"
	"unsafe"

	"github.com/aalhour/extmem/internal/mempool"
	"github.com/aalhour/extmem/ioengine"
	"github.com/aalhour/extmem/vfs"
	"github.com/zeebo/xxh3"
)

// bidWireSize is the on-disk width reserved per trailing sub-BID: an
// 8-byte file-registry id (resolved against a caller-supplied table, out
// of this module's scope — see the note on SubBIDs below) plus 8-byte
// offset and 8-byte size.
const bidWireSize = 24

// infoWireSize is the width of the optional trailing info word.
const infoWireSize = 8

// TypedBlock is a fixed-size, aligned container of Values plus a trailer
// reserved for sub-BIDs and an optional info word, padded with zero bytes
// to RawSize and aligned to the block alignment so it can be the target
// of direct I/O.
//
// Values is backed directly by the block's raw, aligned buffer via
// unsafe.Slice: writing Values[i] is writing the bytes Read/Write
// transfer, the same zero-copy relationship the original's
// reinterpret_cast gave it. T must therefore be a fixed-size value type
// with no pointers or slices, same caveat the original's template
// parametrization carried.
//
// SubBIDs is kept as ordinary Go values rather than overlaid on the
// buffer: a BID's File field is a live vfs.File reference, not
// disk-resident data, so persisting it would require a file-registry id
// scheme this module doesn't define. bidWireSize still reserves the
// on-disk trailer space a complete implementation would encode into, so
// RawSize matches what the original's layout would occupy.
type TypedBlock[T any] struct {
	Values  []T
	SubBIDs []BID
	Info    uint64
	HasInfo bool

	rawSize   int64
	alignment int
	buf       []byte
}

// NewTypedBlock constructs a block holding valueCount values of T and
// refCount sub-BIDs, with RawSize padded up to alignment.
func NewTypedBlock[T any](valueCount, refCount int, hasInfo bool, alignment int) *TypedBlock[T] {
	if alignment <= 0 {
		alignment = vfs.DefaultBlockSize
	}
	var zero T
	valueSize := int64(unsafe.Sizeof(zero))

	raw := int64(valueCount)*valueSize + int64(refCount)*bidWireSize
	if hasInfo {
		raw += infoWireSize
	}
	if raw == 0 {
		raw = int64(alignment)
	}
	if rem := raw % int64(alignment); rem != 0 {
		raw += int64(alignment) - rem
	}

	buf, err := mempool.GlobalPool.Alloc(int(raw), alignment)
	if err != nil {
		// Size/alignment are caller-controlled and validated above
		// (alignment is forced to a positive default); the only remaining
		// failure is raw exceeding mempool.MaxAllocSize, which panics here
		// the same way make([]byte, hugeSize) would.
		panic(err)
	}

	b := &TypedBlock[T]{
		SubBIDs:   make([]BID, refCount),
		HasInfo:   hasInfo,
		rawSize:   raw,
		alignment: alignment,
		buf:       buf,
	}
	if valueCount > 0 {
		b.Values = unsafe.Slice((*T)(unsafe.Pointer(&buf[0])), valueCount)
	}
	return b
}

// RawSize returns the padded, aligned byte size this block occupies on
// disk.
func (b *TypedBlock[T]) RawSize() int64 { return b.rawSize }

// Release returns the block's backing buffer to the pool it came from.
// The block must not be used afterward.
func (b *TypedBlock[T]) Release() {
	mempool.GlobalPool.Free(b.buf, b.alignment)
	b.buf = nil
	b.Values = nil
}

// Read issues an async read of this block's raw bytes from bid, returning
// the in-flight Request.
func (b *TypedBlock[T]) Read(reg *ioengine.Registry, bid BID, onComplete ioengine.CompletionHandler) (*ioengine.Request, error) {
	return ioengine.ARead(reg, bid.File, b.buf, bid.Offset, onComplete)
}

// Write issues an async write of this block's raw bytes to bid.
func (b *TypedBlock[T]) Write(reg *ioengine.Registry, bid BID, onComplete ioengine.CompletionHandler) (*ioengine.Request, error) {
	return ioengine.AWrite(reg, bid.File, b.buf, bid.Offset, onComplete)
}

// ReadSync issues a read and waits for it, for callers that don't need to
// overlap I/O with computation.
func (b *TypedBlock[T]) ReadSync(ctx context.Context, reg *ioengine.Registry, bid BID) error {
	req, err := b.Read(reg, bid, nil)
	if err != nil {
		return err
	}
	return req.Wait(ctx)
}

// WriteSync issues a write and waits for it.
func (b *TypedBlock[T]) WriteSync(ctx context.Context, reg *ioengine.Registry, bid BID) error {
	req, err := b.Write(reg, bid, nil)
	if err != nil {
		return err
	}
	return req.Wait(ctx)
}

// Raw exposes the block's backing buffer, the bytes Read/Write actually
// transfer.
func (b *TypedBlock[T]) Raw() []byte { return b.buf }

// Checksum hashes the block's raw bytes. Round-trip tests use it to
// confirm a write-then-read cycle reproduces the same bytes without
// comparing Values field by field.
func (b *TypedBlock[T]) Checksum() uint64 { return xxh3.Hash(b.buf) }
