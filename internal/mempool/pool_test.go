package mempool

// pool_test.go tests the aligned buffer allocator.

import "testing"

func TestAlignedPoolBasic(t *testing.T) {
	pool := NewAlignedPool()

	alignments := []int{512, 4096}
	sizes := []int{512, 4096, 4096 * 4}
	for _, alignment := range alignments {
		for _, size := range sizes {
			buf, err := pool.Alloc(size, alignment)
			if err != nil {
				t.Fatalf("Alloc(%d, %d): %v", size, alignment, err)
			}
			if len(buf) != size {
				t.Errorf("expected len %d, got %d", size, len(buf))
			}
			if !IsAligned(int(uintptrOf(buf)), alignment) {
				t.Errorf("buffer not aligned to %d", alignment)
			}
			pool.Free(buf, alignment)
		}
	}
}

func TestAlignedPoolReuse(t *testing.T) {
	pool := NewAlignedPool()

	buf1, err := pool.Alloc(4096, 4096)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	pool.Free(buf1, 4096)

	buf2, err := pool.Alloc(4096, 4096)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if !IsAligned(int(uintptrOf(buf2)), 4096) {
		t.Errorf("reused buffer not aligned")
	}
}

func TestAlignedPoolBadAlignment(t *testing.T) {
	pool := NewAlignedPool()

	if _, err := pool.Alloc(4096, 0); err != ErrBadAlignment {
		t.Errorf("expected ErrBadAlignment for 0, got %v", err)
	}
	if _, err := pool.Alloc(4096, 3); err != ErrBadAlignment {
		t.Errorf("expected ErrBadAlignment for non-power-of-two, got %v", err)
	}
}

func TestAlignedPoolTooLarge(t *testing.T) {
	pool := NewAlignedPool()

	if _, err := pool.Alloc(MaxAllocSize+1, 4096); err != ErrTooLarge {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
}

func TestAlignedPoolFreeNil(t *testing.T) {
	pool := NewAlignedPool()
	// Should not panic.
	pool.Free(nil, 4096)
}

func TestIsAligned(t *testing.T) {
	cases := []struct {
		addr, alignment int
		want            bool
	}{
		{0, 4096, true},
		{4096, 4096, true},
		{4097, 4096, false},
		{512, 512, true},
		{1, 512, false},
	}
	for _, c := range cases {
		if got := IsAligned(c.addr, c.alignment); got != c.want {
			t.Errorf("IsAligned(%d, %d) = %v, want %v", c.addr, c.alignment, got, c.want)
		}
	}
}

func BenchmarkAlignedPoolAllocFree(b *testing.B) {
	pool := NewAlignedPool()
	for b.Loop() {
		buf, _ := pool.Alloc(4096, 4096)
		pool.Free(buf, 4096)
	}
}
