package extmem

// errors.go implements the error taxonomy. The concrete types
// live in internal/errs so that vfs, ioengine, and mng can construct them
// without importing this root package (which itself imports mng for BID,
// and would otherwise form an import cycle); this file re-exports them as
// the public API.
//
// Reference: original_source include/stxxl/bits/common/exceptions.h defines
// io_error, bad_ext_alloc, and a handful of assertion macros; this taxonomy
// carries that forward as Go sentinel-wrapped error types so callers can
// use errors.Is/errors.As idiomatically.

import "github.com/aalhour/extmem/internal/errs"

// Sentinel errors. Wrap with errors.Is.
var (
	ErrIO          = errs.ErrIO
	ErrResource    = errs.ErrResource
	ErrBadExtAlloc = errs.ErrBadExtAlloc
	ErrConfig      = errs.ErrConfig
	ErrInvariant   = errs.ErrInvariant
)

// Error types. See internal/errs for field documentation.
type (
	IOError          = errs.IOError
	ResourceError    = errs.ResourceError
	BadExtAllocError = errs.BadExtAllocError
	ConfigError      = errs.ConfigError
	InvariantError   = errs.InvariantError
)

// NewIOError builds an IOError, returning nil if cause is nil.
func NewIOError(op, path string, cause error) error { return errs.NewIOError(op, path, cause) }

// NewResourceError builds a ResourceError.
func NewResourceError(op string, cause error) error { return errs.NewResourceError(op, cause) }

// SetDebugAssertions enables or disables panic-on-invariant-violation
// process-wide. NewBlockManager calls this with true when Config.Debug is
// set and leaves it alone otherwise; EXTMEM_DEBUG=1 sets the initial value
// at process start, before main runs.
func SetDebugAssertions(v bool) { errs.SetDebugAssertions(v) }

// DebugAssertionsEnabled reports whether an InvariantError currently
// panics instead of being logged and returned as a normal error.
func DebugAssertionsEnabled() bool { return errs.DebugAssertionsEnabled() }
