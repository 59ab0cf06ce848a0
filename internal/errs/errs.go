// Package errs holds the error taxonomy, factored out of the
// root extmem package so that leaf packages (vfs, ioengine, mng) can return
// these error types without importing the root package and creating an
// import cycle (the root package imports mng for the BID type). The root
// package re-exports these names as type aliases and sentinel vars, so
// callers never see this package directly.
//
// Reference: original_source include/stxxl/bits/common/exceptions.h.
package errs

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/aalhour/extmem/internal/logging"
)

var debugAssertions atomic.Bool

func init() {
	switch os.Getenv("EXTMEM_DEBUG") {
	case "1", "true":
		debugAssertions.Store(true)
	}
}

// SetDebugAssertions enables or disables panic-on-invariant-violation.
// EXTMEM_DEBUG=1 sets the initial value at process start; NewBlockManager
// calls this with true when Config.Debug is set, so either one can turn it
// on.
func SetDebugAssertions(v bool) { debugAssertions.Store(v) }

// DebugAssertionsEnabled reports whether Raise should panic rather than
// just log and return.
func DebugAssertionsEnabled() bool { return debugAssertions.Load() }

// ErrIO is the sentinel for OS-level I/O failures: read, write, open, mmap,
// aio_submit, aio_reap. Wrap with errors.Is(err, ErrIO).
var ErrIO = errors.New("extmem: i/o error")

// ErrResource is the sentinel for out-of-memory, AIO ring exhaustion, or
// thread/goroutine creation failure.
var ErrResource = errors.New("extmem: resource error")

// ErrBadExtAlloc is the sentinel for a block allocator that is exhausted
// and cannot grow.
var ErrBadExtAlloc = errors.New("extmem: block allocator exhausted")

// ErrConfig is the sentinel for a malformed disk configuration.
var ErrConfig = errors.New("extmem: configuration error")

// ErrInvariant is the sentinel for a broken contract: freeing an
// unallocated extent, double completion, and similar logic errors. It is a
// debug-only assertion class.
var ErrInvariant = errors.New("extmem: invariant violation")

// IOError wraps an OS-level failure captured at the syscall site.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("extmem: %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("extmem: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return ErrIO }

// NewIOError builds an IOError, returning nil if cause is nil (so callers
// can write `return NewIOError(...)` unconditionally after a syscall).
func NewIOError(op, path string, cause error) error {
	if cause == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: cause}
}

// ResourceError wraps an out-of-memory or resource-exhaustion condition.
type ResourceError struct {
	Op  string
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("extmem: %s: %v", e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error { return ErrResource }

// NewResourceError builds a ResourceError.
func NewResourceError(op string, cause error) error {
	return &ResourceError{Op: op, Err: cause}
}

// BadExtAllocError reports a block allocator that could not satisfy a
// request and is not (or can no longer) auto-grow.
type BadExtAllocError struct {
	BlockSize int
	Count     int
	Disk      int
}

func (e *BadExtAllocError) Error() string {
	return fmt.Sprintf("extmem: disk %d: cannot allocate %d blocks of size %d", e.Disk, e.Count, e.BlockSize)
}

func (e *BadExtAllocError) Unwrap() error { return ErrBadExtAlloc }

// ConfigError reports a malformed disk configuration line or option.
type ConfigError struct {
	Line string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("extmem: bad config %q: %v", e.Line, e.Err)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// InvariantError reports a broken internal contract. Construct it and
// call Raise rather than returning it directly.
type InvariantError struct {
	What string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("extmem: invariant violated: %s", e.What)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }

// Raise is how call sites report an InvariantError: it always logs via
// log at Error level, then either panics (DebugAssertionsEnabled) or
// returns e as a normal error for the caller to propagate. This is the
// debug-only assertion class: a dev build with EXTMEM_DEBUG=1 or
// Config.Debug set crashes loudly at the point of corruption, while a
// production build degrades to an ordinary returned error instead of
// taking down the whole process over one bad invariant.
func (e *InvariantError) Raise(log logging.Logger) error {
	log = logging.OrDefault(log)
	log.Errorf("invariant violated: %s", e.What)
	if DebugAssertionsEnabled() {
		panic(e)
	}
	return e
}
