package ioengine

import (
	"fmt"
	"sync"
)

// QueueKind selects which Queue implementation the registry constructs
// for a queue id on first reference.
type QueueKind int

const (
	// SingleFIFO is one worker draining one FIFO.
	SingleFIFO QueueKind = iota
	// SplitFIFO is two FIFOs split by op kind with a write-priority
	// policy.
	SplitFIFO
	// KernelAIO is the Linux-native AIO queue (splitQueue elsewhere).
	KernelAIO
)

// Registry is the process-wide disk-queues registry: a lazily
// constructed map from queue id to Queue.
//
// Production code may use the package-level Default registry, but tests
// should construct their own Registry value to avoid hidden coupling
// between test cases.
type Registry struct {
	mu      sync.Mutex
	queues  map[int]Queue
	kindOf  map[int]QueueKind
	aioSize int

	// Stats receives the begin/end counters for every request this
	// registry dispatches. Defaults to a private instance; assign before
	// the first Dispatch to share counters with a caller-owned Stats.
	Stats *Stats
}

// NewRegistry creates an empty registry. aioMaxEvents configures the ring
// size used when a KernelAIO queue is constructed; 0 selects a default.
func NewRegistry(aioMaxEvents int) *Registry {
	return &Registry{
		queues:  make(map[int]Queue),
		kindOf:  make(map[int]QueueKind),
		aioSize: aioMaxEvents,
		Stats:   NewStats(),
	}
}

// Declare registers which Queue implementation should be built for id, if
// a request targeting id arrives before the queue exists. Calling Declare
// after the queue has already been constructed has no effect.
func (r *Registry) Declare(id int, kind QueueKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queues[id]; ok {
		return
	}
	r.kindOf[id] = kind
}

func (r *Registry) queueFor(id int) (Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if q, ok := r.queues[id]; ok {
		return q, nil
	}

	kind := r.kindOf[id]
	var q Queue
	var err error
	switch kind {
	case SplitFIFO:
		q = NewSplitQueue(true)
	case KernelAIO:
		q, err = NewAIOQueue(r.aioSize)
	default:
		q = NewSingleQueue()
	}
	if err != nil {
		return nil, fmt.Errorf("ioengine: constructing queue %d: %w", id, err)
	}
	r.queues[id] = q
	return q, nil
}

// Dispatch routes req to its file's declared queue, constructing that
// queue on first reference.
func (r *Registry) Dispatch(req *Request) error {
	q, err := r.queueFor(req.File().QueueID())
	if err != nil {
		return err
	}
	req.queue = q
	return q.Add(req)
}

// Cancel routes a cancellation to req's queue.
func (r *Registry) Cancel(req *Request) bool {
	if req.queue == nil {
		return false
	}
	return req.queue.Cancel(req)
}

// Shutdown tears down every constructed queue, in no particular order;
// the registry waits for each worker to report TERMINATED before
// returning.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	queues := make([]Queue, 0, len(r.queues))
	for _, q := range r.queues {
		queues = append(queues, q)
	}
	r.queues = make(map[int]Queue)
	r.mu.Unlock()

	for _, q := range queues {
		q.Shutdown()
	}
}
