package mng

// pool.go implements the prefetch and write pools: bounded sets of typed
// blocks that let a streaming consumer/producer overlap I/O with
// computation instead of waiting on each block individually.
//
// Blocking is built on sync.Cond rather than a literal buffered channel:
// Resize changes how many callers may be waiting for a free slot at once,
// which a fixed-capacity channel buffer can't do without recreating the
// channel out from under a goroutine already blocked receiving on it.
// RockyardKV's WriteBufferManager uses the same stallCond/Wait/Broadcast
// shape for its memory-pressure stall (see write_buffer_manager.go); this
// generalizes it to a free-block count instead of a byte budget, and adds
// ctx-cancellable waiting since every other blocking operation in this
// module (Request.Wait) takes a context.

import (
	"context"
	"sync"

	"github.com/aalhour/extmem/ioengine"
)

// BlockFactory builds a fresh typed block for a pool to grow with, or to
// seed itself with at construction.
type BlockFactory[T any] func() *TypedBlock[T]

// waitCtxCond blocks on cond until ready reports true or ctx is done.
// The caller must hold cond.L locked on entry; it remains locked on
// return, whether ready became true or ctx expired.
func waitCtxCond(ctx context.Context, cond *sync.Cond, ready func() bool) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cond.L.Lock()
			cond.Broadcast()
			cond.L.Unlock()
		case <-done:
		}
	}()

	for !ready() {
		if err := ctx.Err(); err != nil {
			return err
		}
		cond.Wait()
	}
	return nil
}

// WritePool is a bounded set of typed blocks used to buffer outgoing
// writes: a caller steals a free block, fills it, hands it to Write, and
// the block returns to the free set once its write completes.
type WritePool[T any] struct {
	reg     *ioengine.Registry
	factory BlockFactory[T]

	mu       sync.Mutex
	cond     *sync.Cond
	free     []*TypedBlock[T]
	capacity int
	inFlight int
}

// NewWritePool creates a pool of k free blocks, each built by factory.
func NewWritePool[T any](reg *ioengine.Registry, k int, factory BlockFactory[T]) *WritePool[T] {
	p := &WritePool[T]{reg: reg, factory: factory, capacity: k}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < k; i++ {
		p.free = append(p.free, factory())
	}
	return p
}

// Steal blocks until a free block exists, then removes and returns it.
func (p *WritePool[T]) Steal(ctx context.Context) (*TypedBlock[T], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	waited := len(p.free) == 0
	if err := waitCtxCond(ctx, p.cond, func() bool { return len(p.free) > 0 }); err != nil {
		return nil, err
	}
	if waited {
		p.reg.Stats.RecordSteal()
	}

	last := len(p.free) - 1
	b := p.free[last]
	p.free = p.free[:last]
	return b, nil
}

// Write transfers ownership of block into the pool's in-flight set,
// initiates an async write to bid, and arranges for block to become free
// again once the write completes.
func (p *WritePool[T]) Write(block *TypedBlock[T], bid BID) (*ioengine.Request, error) {
	p.mu.Lock()
	p.inFlight++
	p.mu.Unlock()

	release := func() {
		p.mu.Lock()
		p.inFlight--
		p.free = append(p.free, block)
		p.cond.Broadcast()
		p.mu.Unlock()
	}

	req, err := block.Write(p.reg, bid, func(*ioengine.Request, error) { release() })
	if err != nil {
		release()
		return nil, err
	}
	return req, nil
}

// Add returns a caller-owned block to the pool's free set directly, with
// no associated write.
func (p *WritePool[T]) Add(block *TypedBlock[T]) {
	p.mu.Lock()
	p.free = append(p.free, block)
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Resize grows or shrinks the pool to k blocks. Shrinking below the
// current in-flight count blocks until enough writes complete to make
// room.
func (p *WritePool[T]) Resize(ctx context.Context, k int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := waitCtxCond(ctx, p.cond, func() bool { return p.inFlight <= k }); err != nil {
		return err
	}
	resizeFreeList(&p.free, p.capacity, k, p.factory)
	p.capacity = k
	p.cond.Broadcast()
	return nil
}

// Capacity returns the pool's current target size.
func (p *WritePool[T]) Capacity() int { p.mu.Lock(); defer p.mu.Unlock(); return p.capacity }

// FreeCount returns the number of blocks currently free.
func (p *WritePool[T]) FreeCount() int { p.mu.Lock(); defer p.mu.Unlock(); return len(p.free) }

// InFlight returns the number of writes currently draining.
func (p *WritePool[T]) InFlight() int { p.mu.Lock(); defer p.mu.Unlock(); return p.inFlight }

// resizeFreeList adjusts free to hold newCap-(oldCap-len(free)) blocks:
// growing appends newly-built blocks, shrinking releases trailing ones
// back to their backing allocator. The caller must already know enough
// blocks are free to remove (that's what the inFlight/prefetch-count wait
// before calling this establishes).
func resizeFreeList[T any](free *[]*TypedBlock[T], oldCap, newCap int, factory BlockFactory[T]) {
	switch {
	case newCap > oldCap:
		for i := 0; i < newCap-oldCap; i++ {
			*free = append(*free, factory())
		}
	case newCap < oldCap:
		shrink := oldCap - newCap
		f := *free
		for shrink > 0 && len(f) > 0 {
			last := len(f) - 1
			f[last].Release()
			f = f[:last]
			shrink--
		}
		*free = f
	}
}

// prefetchInFlight records the block a Hint is filling and the Request
// doing the filling, keyed by the BID it will eventually satisfy.
type prefetchInFlight[T any] struct {
	block *TypedBlock[T]
	req   *ioengine.Request
}

// PrefetchPool is a bounded set of typed blocks used to read ahead of a
// streaming consumer: Hint starts a read before the consumer asks for the
// block, and Read either collects that read's result or, if the consumer
// got there first, issues a fresh one.
type PrefetchPool[T any] struct {
	reg     *ioengine.Registry
	factory BlockFactory[T]

	mu       sync.Mutex
	cond     *sync.Cond
	free     []*TypedBlock[T]
	capacity int
	inFlight map[BID]*prefetchInFlight[T]
}

// NewPrefetchPool creates a pool of k free blocks, each built by factory.
func NewPrefetchPool[T any](reg *ioengine.Registry, k int, factory BlockFactory[T]) *PrefetchPool[T] {
	p := &PrefetchPool[T]{
		reg:      reg,
		factory:  factory,
		capacity: k,
		inFlight: make(map[BID]*prefetchInFlight[T]),
	}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < k; i++ {
		p.free = append(p.free, factory())
	}
	return p
}

// Hint starts an async read of bid into a free pool block and records the
// mapping so a later Read can collect it. Re-hinting a bid already in
// flight is a no-op.
func (p *PrefetchPool[T]) Hint(ctx context.Context, bid BID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.inFlight[bid]; ok {
		return nil
	}

	waited := len(p.free) == 0
	if err := waitCtxCond(ctx, p.cond, func() bool { return len(p.free) > 0 }); err != nil {
		return err
	}
	if waited {
		p.reg.Stats.RecordSteal()
	}

	last := len(p.free) - 1
	block := p.free[last]
	p.free = p.free[:last]

	entry := &prefetchInFlight[T]{block: block}
	p.inFlight[bid] = entry

	req, err := block.Read(p.reg, bid, nil)
	if err != nil {
		delete(p.inFlight, bid)
		p.free = append(p.free, block)
		p.cond.Broadcast()
		return err
	}
	entry.req = req
	return nil
}

// Read returns the block holding (or about to hold) bid's contents and
// the Request filling it. If bid was previously Hinted, the hinted block
// is returned in its place and block is returned to the pool's free set;
// otherwise block is read into directly.
func (p *PrefetchPool[T]) Read(block *TypedBlock[T], bid BID) (*TypedBlock[T], *ioengine.Request, error) {
	p.mu.Lock()
	if entry, ok := p.inFlight[bid]; ok {
		delete(p.inFlight, bid)
		p.free = append(p.free, block)
		p.cond.Broadcast()
		p.mu.Unlock()
		p.reg.Stats.RecordHit()
		return entry.block, entry.req, nil
	}
	p.mu.Unlock()

	req, err := block.Read(p.reg, bid, nil)
	if err != nil {
		return nil, nil, err
	}
	return block, req, nil
}

// Invalidate cancels a running prefetch for bid if it hasn't been
// dispatched to its backend yet, returning its block to the free set. If
// the prefetch is already past cancellation, the mapping is left for a
// later Read to drain.
func (p *PrefetchPool[T]) Invalidate(bid BID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.inFlight[bid]
	if !ok {
		return
	}
	if entry.req.Cancel() {
		delete(p.inFlight, bid)
		p.free = append(p.free, entry.block)
		p.cond.Broadcast()
	}
}

// Resize grows or shrinks the pool to k blocks. Shrinking below the
// current number of in-flight prefetches blocks until enough of them are
// collected (via Read or Invalidate) to make room.
func (p *PrefetchPool[T]) Resize(ctx context.Context, k int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := waitCtxCond(ctx, p.cond, func() bool { return len(p.inFlight) <= k }); err != nil {
		return err
	}
	resizeFreeList(&p.free, p.capacity, k, p.factory)
	p.capacity = k
	p.cond.Broadcast()
	return nil
}

// Capacity returns the pool's current target size.
func (p *PrefetchPool[T]) Capacity() int { p.mu.Lock(); defer p.mu.Unlock(); return p.capacity }

// FreeCount returns the number of blocks currently free.
func (p *PrefetchPool[T]) FreeCount() int { p.mu.Lock(); defer p.mu.Unlock(); return len(p.free) }

// InFlightCount returns the number of prefetches currently running or
// awaiting collection.
func (p *PrefetchPool[T]) InFlightCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight)
}
