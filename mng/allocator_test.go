package mng

import (
	"errors"
	"testing"

	"github.com/aalhour/extmem/internal/errs"
	"github.com/kylelemons/godebug/pretty"
)

func TestDiskAllocatorCarvesFromSingleExtent(t *testing.T) {
	a := NewDiskAllocator(0, 4096*4, false, nil, nil)
	offs, err := a.Allocate(4096, 4)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	want := []int64{0, 4096, 8192, 12288}
	for i, w := range want {
		if offs[i] != w {
			t.Fatalf("offs[%d] = %d, want %d", i, offs[i], w)
		}
	}
	if a.FreeBytes() != 0 {
		t.Fatalf("FreeBytes = %d, want 0", a.FreeBytes())
	}
	if a.UsedBytes() != 4096*4 {
		t.Fatalf("UsedBytes = %d, want %d", a.UsedBytes(), 4096*4)
	}
}

func TestDiskAllocatorExhaustionWithoutAutoGrow(t *testing.T) {
	a := NewDiskAllocator(0, 4096*2, false, nil, nil)
	if _, err := a.Allocate(4096, 3); err == nil {
		t.Fatal("expected exhaustion error, got nil")
	} else {
		var bad *errs.BadExtAllocError
		if !errors.As(err, &bad) {
			t.Fatalf("error type = %T, want *errs.BadExtAllocError", err)
		}
		if !errors.Is(err, errs.ErrBadExtAlloc) {
			t.Fatal("error does not unwrap to ErrBadExtAlloc")
		}
	}
}

func TestDiskAllocatorAutoGrowSatisfiesRequest(t *testing.T) {
	grown := int64(0)
	grow := func(minBytes int64) (int64, error) {
		grown += minBytes
		return minBytes, nil
	}
	a := NewDiskAllocator(0, 4096, true, grow, nil)

	offs, err := a.Allocate(4096, 3)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if len(offs) != 3 {
		t.Fatalf("got %d offsets, want 3", len(offs))
	}
	if grown == 0 {
		t.Fatal("grow was never called")
	}
	if a.Capacity() < 4096*3 {
		t.Fatalf("Capacity = %d, want >= %d", a.Capacity(), 4096*3)
	}
}

func TestDiskAllocatorFreeCoalescesNeighbors(t *testing.T) {
	a := NewDiskAllocator(0, 4096*4, false, nil, nil)
	offs, err := a.Allocate(4096, 4)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	// Free the middle two first, then the outer two: the final state
	// should coalesce back into exactly one extent covering everything.
	if err := a.Free(offs[1], 4096, 1); err != nil {
		t.Fatalf("Free(offs[1]): %v", err)
	}
	if err := a.Free(offs[2], 4096, 1); err != nil {
		t.Fatalf("Free(offs[2]): %v", err)
	}
	if err := a.Free(offs[0], 4096, 1); err != nil {
		t.Fatalf("Free(offs[0]): %v", err)
	}
	if err := a.Free(offs[3], 4096, 1); err != nil {
		t.Fatalf("Free(offs[3]): %v", err)
	}

	ext := a.Extents()
	want := [][2]int64{{0, 4096 * 4}}
	if diff := pretty.Compare(ext, want); diff != "" {
		t.Fatalf("Extents() mismatch after coalescing (-got +want):\n%s", diff)
	}
	if a.UsedBytes() != 0 {
		t.Fatalf("UsedBytes = %d, want 0", a.UsedBytes())
	}
}

func TestDiskAllocatorDoubleFreeIsInvariantError(t *testing.T) {
	a := NewDiskAllocator(0, 4096*2, false, nil, nil)
	offs, err := a.Allocate(4096, 1)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := a.Free(offs[0], 4096, 1); err != nil {
		t.Fatalf("first Free: %v", err)
	}
	err = a.Free(offs[0], 4096, 1)
	if err == nil {
		t.Fatal("expected invariant error on double free, got nil")
	}
	var inv *errs.InvariantError
	if !errors.As(err, &inv) {
		t.Fatalf("error type = %T, want *errs.InvariantError", err)
	}
}

func TestDiskAllocatorFreeOutOfBounds(t *testing.T) {
	a := NewDiskAllocator(0, 4096, false, nil, nil)
	if err := a.Free(8192, 4096, 1); err == nil {
		t.Fatal("expected out-of-bounds error, got nil")
	}
}
