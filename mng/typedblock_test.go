package mng

import (
	"context"
	"testing"

	"github.com/aalhour/extmem/ioengine"
	"github.com/aalhour/extmem/vfs"
)

func newTestFile(t *testing.T, size int64) vfs.File {
	t.Helper()
	f := vfs.NewMemFile(vfs.FileOptions{})
	if err := f.SetSize(size); err != nil {
		t.Fatalf("SetSize: %v", err)
	}
	return f
}

func TestNewTypedBlockPadsToAlignment(t *testing.T) {
	b := NewTypedBlock[int32](3, 1, false, 4096)
	if b.RawSize()%4096 != 0 {
		t.Fatalf("RawSize() = %d, not a multiple of 4096", b.RawSize())
	}
	if len(b.Values) != 3 {
		t.Fatalf("len(Values) = %d, want 3", len(b.Values))
	}
	if len(b.SubBIDs) != 1 {
		t.Fatalf("len(SubBIDs) = %d, want 1", len(b.SubBIDs))
	}
	if len(b.Raw()) != int(b.RawSize()) {
		t.Fatalf("len(Raw()) = %d, want %d", len(b.Raw()), b.RawSize())
	}
}

func TestTypedBlockValuesAreBackedByRawBuffer(t *testing.T) {
	b := NewTypedBlock[int64](4, 0, false, 4096)
	b.Values[2] = 0x1122334455667788

	raw := b.Raw()
	// int64 is little-endian on every platform this module targets;
	// element 2 starts 16 bytes in.
	var reconstructed int64
	for i := 0; i < 8; i++ {
		reconstructed |= int64(raw[16+i]) << (8 * i)
	}
	if reconstructed != b.Values[2] {
		t.Fatalf("raw bytes don't reflect Values[2]: got %x, want %x", reconstructed, b.Values[2])
	}
}

func TestTypedBlockWriteThenReadRoundTrips(t *testing.T) {
	f := newTestFile(t, 8192)
	reg := ioengine.NewRegistry(0)
	defer reg.Shutdown()

	ctx := context.Background()
	bid := BID{File: f, Offset: 0, Size: 4096}

	w := NewTypedBlock[int32](4, 0, false, 4096)
	for i := range w.Values {
		w.Values[i] = int32(i * 10)
	}
	if err := w.WriteSync(ctx, reg, bid); err != nil {
		t.Fatalf("WriteSync: %v", err)
	}

	r := NewTypedBlock[int32](4, 0, false, 4096)
	if err := r.ReadSync(ctx, reg, bid); err != nil {
		t.Fatalf("ReadSync: %v", err)
	}
	for i := range r.Values {
		if r.Values[i] != w.Values[i] {
			t.Fatalf("Values[%d] = %d, want %d", i, r.Values[i], w.Values[i])
		}
	}
	if r.Checksum() != w.Checksum() {
		t.Fatalf("Checksum() = %x, want %x (raw bytes must round-trip exactly)", r.Checksum(), w.Checksum())
	}
}

func TestTypedBlockZeroValueCountStillAligns(t *testing.T) {
	b := NewTypedBlock[int32](0, 0, false, 4096)
	if b.RawSize() != 4096 {
		t.Fatalf("RawSize() = %d, want 4096 for an all-empty block", b.RawSize())
	}
	if b.Values != nil {
		t.Fatalf("Values = %v, want nil for valueCount 0", b.Values)
	}
}
