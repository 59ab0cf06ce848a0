//go:build linux

package ioengine

// aioQueue implements the kernel-AIO Queue variant directly against the
// Linux io_submit(2)/io_getevents(2) ABI (linux/aio_abi.h).
// golang.org/x/sys/unix does not wrap these four syscalls (they are
// listed in its syscall_linux.go as deliberately unimplemented), so this
// file calls them through unix.Syscall with the raw syscall numbers the
// package does export (unix.SYS_IO_SETUP and friends), encoding the
// kernel's iocb/io_event structs by hand. This mirrors how the handful of
// real-world Go native-AIO shims (built against the same stable ABI)
// operate, and keeps golang.org/x/sys/unix as the dependency doing the
// actual syscall trapping rather than inventing one.
//
// Reference: original_source io/linuxaio_queue.cpp (submitter + reaper
// thread split) and io/linuxaio_request.cpp (iocb construction).

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"

	"github.com/aalhour/extmem/vfs"
)

const (
	iocbCmdPread  = 0
	iocbCmdPwrite = 1
)

// iocb mirrors struct iocb from linux/aio_abi.h: a stable, decades-old ABI.
type iocb struct {
	data       uint64
	key        uint32
	rwFlags    uint32
	lioOpcode  uint16
	reqPrio    int16
	fildes     uint32
	buf        uint64
	nbytes     uint64
	offset     int64
	reserved2  uint64
	flags      uint32
	resfd      uint32
}

// ioEvent mirrors struct io_event from linux/aio_abi.h.
type ioEvent struct {
	data uint64
	obj  uint64
	res  int64
	res2 int64
}

func ioSetup(nrEvents uint, ctxp *uint64) error {
	_, _, errno := unix.Syscall(unix.SYS_IO_SETUP, uintptr(nrEvents), uintptr(unsafe.Pointer(ctxp)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func ioDestroy(ctx uint64) error {
	_, _, errno := unix.Syscall(unix.SYS_IO_DESTROY, uintptr(ctx), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func ioSubmit(ctx uint64, cbs []*iocb) (int, error) {
	if len(cbs) == 0 {
		return 0, nil
	}
	n, _, errno := unix.Syscall(unix.SYS_IO_SUBMIT, uintptr(ctx), uintptr(len(cbs)), uintptr(unsafe.Pointer(&cbs[0])))
	if errno != 0 {
		return int(n), errno
	}
	return int(n), nil
}

func ioGetevents(ctx uint64, minNr, maxNr int, events []ioEvent, timeout *unix.Timespec) (int, error) {
	n, _, errno := unix.Syscall6(unix.SYS_IO_GETEVENTS, uintptr(ctx), uintptr(minNr), uintptr(maxNr),
		uintptr(unsafe.Pointer(&events[0])), uintptr(unsafe.Pointer(timeout)), 0)
	if errno != 0 {
		return int(n), errno
	}
	return int(n), nil
}

// aioQueue submits requests against a *vfs.LinuxAIOFile's raw descriptor
// with native Linux AIO, reaping completions on a dedicated goroutine.
// Requests against any other vfs.File implementation are rejected: the
// registry only ever routes linuxaio-kind disks here, and such disks are
// always opened as *vfs.LinuxAIOFile.
type aioQueue struct {
	ctx       uint64
	maxEvents int

	waitingMu sync.Mutex
	waiting   []*Request

	postedMu sync.Mutex
	posted   map[uint64]*Request
	nextID   atomic.Uint64

	ring   *semaphore.Weighted // bounds concurrently posted iocbs
	wakeCh chan struct{}

	state   atomic.Int32
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewAIOQueue sets up a kernel AIO context able to hold maxEvents
// concurrently posted requests.
func NewAIOQueue(maxEvents int) (Queue, error) {
	if maxEvents <= 0 {
		maxEvents = 128
	}
	var ctx uint64
	if err := ioSetup(uint(maxEvents), &ctx); err != nil {
		return nil, fmt.Errorf("ioengine: io_setup: %w", err)
	}

	q := &aioQueue{
		ctx:       ctx,
		maxEvents: maxEvents,
		posted:    make(map[uint64]*Request),
		ring:      semaphore.NewWeighted(int64(maxEvents)),
		wakeCh:    make(chan struct{}, 1),
		stopped:   make(chan struct{}),
	}
	q.state.Store(lifecycleRunning)

	runCtx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); q.submitter(runCtx) }()
	go func() { defer wg.Done(); q.reaper(runCtx) }()
	go func() {
		wg.Wait()
		_ = ioDestroy(q.ctx)
		q.state.Store(lifecycleTerminated)
		close(q.stopped)
	}()

	return q, nil
}

func (q *aioQueue) Add(req *Request) error {
	if q.state.Load() >= lifecycleTerminating {
		return fmt.Errorf("ioengine: queue is shutting down")
	}
	if _, ok := req.File().(*vfs.LinuxAIOFile); !ok {
		return fmt.Errorf("ioengine: aio queue requires a *vfs.LinuxAIOFile, got %T", req.File())
	}

	req.Ref()
	q.waitingMu.Lock()
	q.waiting = append(q.waiting, req)
	q.waitingMu.Unlock()

	select {
	case q.wakeCh <- struct{}{}:
	default:
	}
	return nil
}

func (q *aioQueue) Cancel(req *Request) bool {
	q.waitingMu.Lock()
	defer q.waitingMu.Unlock()
	for i, p := range q.waiting {
		if p == req {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			req.Unref()
			return true
		}
	}
	// Once posted to the kernel, a request cannot be cancelled: the
	// caller must wait for it.
	return false
}

func (q *aioQueue) submitter(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wakeCh:
		}

		for {
			q.waitingMu.Lock()
			if len(q.waiting) == 0 {
				q.waitingMu.Unlock()
				break
			}
			req := q.waiting[0]
			q.waiting = q.waiting[1:]
			q.waitingMu.Unlock()

			if err := q.ring.Acquire(ctx, 1); err != nil {
				req.complete(ctx.Err())
				req.Unref()
				return
			}

			id := q.nextID.Add(1)
			cb := &iocb{
				data:      id,
				fildes:    uint32(req.File().(*vfs.LinuxAIOFile).Fd()),
				buf:       uint64(uintptr(unsafe.Pointer(&req.Buffer()[0]))),
				nbytes:    uint64(len(req.Buffer())),
				offset:    req.Offset(),
				lioOpcode: iocbCmdPread,
			}
			if req.Op() == vfs.Write {
				cb.lioOpcode = iocbCmdPwrite
			}

			q.postedMu.Lock()
			q.posted[id] = req
			q.postedMu.Unlock()

			if _, err := ioSubmit(q.ctx, []*iocb{cb}); err != nil {
				q.postedMu.Lock()
				delete(q.posted, id)
				q.postedMu.Unlock()
				q.ring.Release(1)
				req.complete(fmt.Errorf("ioengine: io_submit: %w", err))
				req.Unref()
			}
		}
	}
}

func (q *aioQueue) reaper(ctx context.Context) {
	events := make([]ioEvent, q.maxEvents)
	// A short poll timeout, rather than blocking indefinitely in
	// io_getevents, lets this goroutine notice ctx cancellation during
	// Shutdown instead of sleeping in the kernel forever when the ring
	// is idle.
	pollTimeout := &unix.Timespec{Sec: 0, Nsec: 100_000_000}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := ioGetevents(q.ctx, 0, len(events), events, pollTimeout)
		if err != nil || n == 0 {
			continue
		}
		for i := 0; i < n; i++ {
			ev := events[i]
			q.postedMu.Lock()
			req, ok := q.posted[ev.data]
			delete(q.posted, ev.data)
			q.postedMu.Unlock()
			if !ok {
				continue
			}

			var completeErr error
			if ev.res < 0 {
				completeErr = fmt.Errorf("ioengine: aio completion errno %d", -ev.res)
			}
			req.complete(completeErr)
			req.Unref()
			q.ring.Release(1)
		}
	}
}

func (q *aioQueue) Shutdown() {
	if !q.state.CompareAndSwap(lifecycleRunning, lifecycleTerminating) {
		return
	}
	q.cancel()
	<-q.stopped
}
