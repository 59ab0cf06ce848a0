package ioengine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/aalhour/extmem/vfs"
)

// Queue is the per-disk FIFO a Request is enqueued on. Three concrete
// implementations exist: singleQueue, splitQueue, and (Linux-only)
// aioQueue.
type Queue interface {
	// Add enqueues req for its worker to serve. Returns an error if the
	// queue is shutting down.
	Add(req *Request) error

	// Cancel removes req from the pending list if it has not yet been
	// dispatched, reporting whether it did so.
	Cancel(req *Request) bool

	// Shutdown transitions the queue to TERMINATING, wakes its
	// worker(s), and blocks until they report TERMINATED.
	Shutdown()
}

// lifecycle states shared by singleQueue and splitQueue:
// NOT_RUNNING -> RUNNING -> TERMINATING -> TERMINATED.
const (
	lifecycleNotRunning int32 = iota
	lifecycleRunning
	lifecycleTerminating
	lifecycleTerminated
)

// singleQueue is one worker goroutine draining one FIFO. The pending
// count is tracked with a golang.org/x/sync/semaphore.Weighted acting as
// a counting semaphore: Add releases one permit per enqueued request,
// the worker acquires one permit per iteration before it is willing to
// look at the FIFO.
//
// Reference: original_source io/request_queue_impl_1q.cpp. The
// golang.org/x/sync dependency is pulled from hanwen-go-fuse's go.mod,
// which already requires it.
type singleQueue struct {
	mu      sync.Mutex
	pending []*Request

	sem    *semaphore.Weighted
	state  atomic.Int32
	cancel context.CancelFunc
	stopped chan struct{}
}

// NewSingleQueue starts a single-FIFO queue and its worker goroutine.
func NewSingleQueue() Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &singleQueue{
		sem:     semaphore.NewWeighted(math.MaxInt64),
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	// Take every permit up front so the count starts at zero pending.
	_ = q.sem.Acquire(context.Background(), math.MaxInt64)
	q.state.Store(lifecycleRunning)
	go q.run(ctx)
	return q
}

func (q *singleQueue) Add(req *Request) error {
	if q.state.Load() >= lifecycleTerminating {
		return fmt.Errorf("ioengine: queue is shutting down")
	}
	req.Ref()
	q.mu.Lock()
	q.pending = append(q.pending, req)
	q.mu.Unlock()
	q.sem.Release(1)
	return nil
}

func (q *singleQueue) Cancel(req *Request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, p := range q.pending {
		if p == req {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			req.Unref()
			return true
		}
	}
	return false
}

func (q *singleQueue) run(ctx context.Context) {
	for {
		if err := q.sem.Acquire(ctx, 1); err != nil {
			q.state.Store(lifecycleTerminated)
			close(q.stopped)
			return
		}

		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			continue
		}
		req := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		req.serve()
		req.Unref()
	}
}

func (q *singleQueue) Shutdown() {
	if !q.state.CompareAndSwap(lifecycleRunning, lifecycleTerminating) {
		return
	}
	q.cancel()
	<-q.stopped
}

// splitQueue maintains two independent FIFOs, one per op kind, each
// guarded by its own mutex, with a priority policy (default: prefer
// writes) — this reduces head-of-line blocking and permits write drains
// during read-heavy bursts.
type splitQueue struct {
	readMu sync.Mutex
	reads  []*Request

	writeMu sync.Mutex
	writes  []*Request

	preferWrite bool

	sem     *semaphore.Weighted
	state   atomic.Int32
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewSplitQueue starts a read/write-split queue. preferWrite selects the
// default op kind served first each iteration when both FIFOs are
// non-empty; the conventional default is write.
func NewSplitQueue(preferWrite bool) Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &splitQueue{
		preferWrite: preferWrite,
		sem:         semaphore.NewWeighted(math.MaxInt64),
		cancel:      cancel,
		stopped:     make(chan struct{}),
	}
	// Take every permit up front so the count starts at zero pending.
	_ = q.sem.Acquire(context.Background(), math.MaxInt64)
	q.state.Store(lifecycleRunning)
	go q.run(ctx)
	return q
}

func (q *splitQueue) isWrite(req *Request) bool { return req.Op() == vfs.Write }

func (q *splitQueue) Add(req *Request) error {
	if q.state.Load() >= lifecycleTerminating {
		return fmt.Errorf("ioengine: queue is shutting down")
	}
	req.Ref()
	if q.isWrite(req) {
		q.writeMu.Lock()
		q.writes = append(q.writes, req)
		q.writeMu.Unlock()
	} else {
		q.readMu.Lock()
		q.reads = append(q.reads, req)
		q.readMu.Unlock()
	}
	q.sem.Release(1)
	return nil
}

func (q *splitQueue) Cancel(req *Request) bool {
	var mu *sync.Mutex
	var list *[]*Request
	if q.isWrite(req) {
		mu, list = &q.writeMu, &q.writes
	} else {
		mu, list = &q.readMu, &q.reads
	}
	mu.Lock()
	defer mu.Unlock()
	for i, p := range *list {
		if p == req {
			*list = append((*list)[:i], (*list)[i+1:]...)
			req.Unref()
			return true
		}
	}
	return false
}

// pop removes and returns the next request to serve, honoring the
// preferred-op policy, or nil if both FIFOs were empty (which happens
// when a permit was released by a request that was then cancelled).
func (q *splitQueue) pop() *Request {
	primary, secondary := &q.writeMu, &q.readMu
	primaryList, secondaryList := &q.writes, &q.reads
	if !q.preferWrite {
		primary, secondary = secondary, primary
		primaryList, secondaryList = secondaryList, primaryList
	}

	primary.Lock()
	if len(*primaryList) > 0 {
		req := (*primaryList)[0]
		*primaryList = (*primaryList)[1:]
		primary.Unlock()
		return req
	}
	primary.Unlock()

	secondary.Lock()
	defer secondary.Unlock()
	if len(*secondaryList) > 0 {
		req := (*secondaryList)[0]
		*secondaryList = (*secondaryList)[1:]
		return req
	}
	return nil
}

func (q *splitQueue) run(ctx context.Context) {
	for {
		if err := q.sem.Acquire(ctx, 1); err != nil {
			q.state.Store(lifecycleTerminated)
			close(q.stopped)
			return
		}
		req := q.pop()
		if req == nil {
			continue
		}
		req.serve()
		req.Unref()
	}
}

func (q *splitQueue) Shutdown() {
	if !q.state.CompareAndSwap(lifecycleRunning, lifecycleTerminating) {
		return
	}
	q.cancel()
	<-q.stopped
}
