// Package ioengine implements the asynchronous I/O substrate: the Request
// object and its lifecycle, the three request queue variants, the
// process-wide disk-queue registry, and the statistics hooks.
//
// ioengine depends on vfs (for the File interface a Request wraps) but vfs
// depends on nothing in this module, so there is no cycle; ARead/AWrite are
// package-level functions here rather than methods on vfs.File for exactly
// that reason.
package ioengine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/aalhour/extmem/vfs"
)

// CompletionHandler is invoked exactly once when a Request reaches DONE,
// before any waiter is released: the completion handler always runs
// first.
type CompletionHandler func(req *Request, err error)

// state values for Request.state. The zero value is stateOP so a
// newly-constructed Request starts in the right state.
const (
	stateOP int32 = iota
	stateDone
	stateReadyToDie
)

// Request is a reified asynchronous I/O operation: (file, buffer, offset,
// op, completion handler), with a monotone state machine OP -> DONE ->
// READY_TO_DIE, reference counting, and waiter notification.
//
// Reference: original_source io/request_with_state.cpp /
// common/onoff_switch.h. The intrusive waiter list described there becomes
// a single channel closed exactly once, the idiomatic Go equivalent of a
// broadcast condition variable: AddWaiter hands back a channel that
// closes when the request completes, instead of registering a callback
// into a mutable set.
type Request struct {
	file   vfs.File
	buf    []byte
	offset int64
	op     vfs.OpType

	onComplete CompletionHandler
	queue      Queue
	stats      *Stats

	state    atomic.Int32
	refCount atomic.Int32

	mu   sync.Mutex
	err  error
	done chan struct{}
}

func newRequest(file vfs.File, buf []byte, offset int64, op vfs.OpType, onComplete CompletionHandler, stats *Stats) *Request {
	r := &Request{
		file:       file,
		buf:        buf,
		offset:     offset,
		op:         op,
		onComplete: onComplete,
		stats:      stats,
		done:       make(chan struct{}),
	}
	r.refCount.Store(1) // the caller's reference
	return r
}

// File returns the request's target file.
func (r *Request) File() vfs.File { return r.file }

// Op returns the request's direction.
func (r *Request) Op() vfs.OpType { return r.op }

// Offset returns the request's byte offset.
func (r *Request) Offset() int64 { return r.offset }

// Buffer returns the request's buffer. Ownership remains with whoever
// constructed the request.
func (r *Request) Buffer() []byte { return r.buf }

// Ref increments the reference count. Every enqueue, waiter, and caller
// that intends to outlive another holder should call this.
func (r *Request) Ref() { r.refCount.Add(1) }

// Unref decrements the reference count. It does not free anything itself
// (the Go GC owns that); it exists so callers can assert, via RefCount,
// that a request is never torn down while references to it remain.
func (r *Request) Unref() { r.refCount.Add(-1) }

// RefCount returns the current reference count.
func (r *Request) RefCount() int32 { return r.refCount.Load() }

// serve runs the synchronous I/O and transitions the request to DONE. It
// is called by a queue worker, never directly by user code.
func (r *Request) serve() {
	start := r.stats.begin(r.op)
	err := r.file.Serve(r.buf, r.offset, r.op)
	r.stats.end(r.op, start, len(r.buf))
	r.complete(err)
}

// complete transitions the request OP -> DONE exactly once: it records
// the error (if any), invokes the completion handler, then releases every
// waiter by closing done. The completion handler always fires strictly
// before waiters observe completion.
func (r *Request) complete(err error) {
	if !r.state.CompareAndSwap(stateOP, stateDone) {
		return
	}

	r.mu.Lock()
	r.err = err
	r.mu.Unlock()

	if r.onComplete != nil {
		r.onComplete(r, err)
	}
	close(r.done)

	r.state.Store(stateReadyToDie)
}

// Poll reports whether the request has reached DONE (or READY_TO_DIE).
func (r *Request) Poll() bool {
	return r.state.Load() != stateOP
}

// AddWaiter returns a channel that closes when the request completes. If
// the request is already DONE, the returned channel is already closed —
// callers find out immediately, without a mutable waiter set to insert
// into.
func (r *Request) AddWaiter() <-chan struct{} {
	return r.done
}

// Wait blocks until the request reaches DONE, then returns the error
// recorded by serve (nil on success). ctx additionally allows a
// Go-idiomatic cancellation/timeout path layered on top of the original's
// blocking wait.
func (r *Request) Wait(ctx context.Context) error {
	if r.Poll() {
		return r.Error()
	}
	r.stats.waitBegin(r.op)
	select {
	case <-r.done:
		return r.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Error returns the error recorded when the request completed, or nil if
// it has not completed yet or completed successfully.
func (r *Request) Error() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Cancel asks the owning queue to remove this request from its pending
// list. If the queue had not yet dispatched it, the request transitions
// OP -> DONE without invoking its completion handler and Cancel returns
// true. Otherwise it returns false and the caller must still Wait.
func (r *Request) Cancel() bool {
	if r.queue == nil {
		return false
	}
	if !r.queue.Cancel(r) {
		return false
	}
	// Transition to DONE without a completion handler, but still
	// release waiters: callers blocked in Wait must not hang forever.
	if !r.state.CompareAndSwap(stateOP, stateDone) {
		return false
	}
	close(r.done)
	r.state.Store(stateReadyToDie)
	return true
}
