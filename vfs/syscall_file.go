package vfs

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/aalhour/extmem/internal/errs"
)

// SyscallFile serves requests with pread(2)/pwrite(2) directly against an
// open file descriptor, optionally opened with O_DIRECT.
//
// Reference: RockyardKV's internal/vfs/direct_io_linux.go opens with
// O_DIRECT via syscall.Open; SyscallFile generalizes that to pread/pwrite
// against an arbitrary byte range instead of a whole SST file, using
// golang.org/x/sys/unix instead of the lower-level syscall package so the
// same call works on both Linux and Darwin.
type SyscallFile struct {
	mu   sync.Mutex
	fd   int
	path string
	opts FileOptions

	queueID     int
	allocatorID int
	directOn    bool
}

// OpenSyscallFile opens path for syscall-based serve. The queue and
// allocator ids come from opts.QueueID and opts.AllocatorID.
func OpenSyscallFile(path string, opts FileOptions) (*SyscallFile, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Mode&RequireDirect != 0 && !directIOSupported {
		return nil, fmt.Errorf("vfs: direct I/O required but not supported on this platform")
	}

	flags := unix.O_RDWR
	if opts.Mode&Creat != 0 {
		flags |= unix.O_CREAT
	}
	if opts.Mode&Trunc != 0 {
		flags |= unix.O_TRUNC
	}
	if opts.Mode&Sync != 0 {
		flags |= unix.O_SYNC
	}

	direct := opts.Mode&Direct != 0 || opts.Mode&RequireDirect != 0
	if direct {
		flags |= directOpenFlag
	}

	fd, err := unix.Open(path, flags, 0o644)
	if direct && err != nil && opts.Mode&RequireDirect == 0 && directOpenFlag != 0 {
		// Try again without O_DIRECT; "direct" degrades to "try".
		fd, err = unix.Open(path, flags&^directOpenFlag, 0o644)
		direct = false
	}
	if err != nil {
		return nil, errs.NewIOError("open", path, err)
	}

	if opts.UnlinkOnOpen {
		_ = unix.Unlink(path)
	}

	f := &SyscallFile{
		fd:          fd,
		path:        path,
		opts:        opts,
		queueID:     opts.QueueID,
		allocatorID: opts.AllocatorID,
		directOn:    direct,
	}
	return f, nil
}

func (f *SyscallFile) Size() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var st unix.Stat_t
	if err := unix.Fstat(f.fd, &st); err != nil {
		return 0, errs.NewIOError("fstat", f.path, err)
	}
	return st.Size, nil
}

func (f *SyscallFile) SetSize(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := unix.Ftruncate(f.fd, size); err != nil {
		return errs.NewIOError("ftruncate", f.path, err)
	}
	return nil
}

func (f *SyscallFile) Serve(buf []byte, offset int64, op OpType) error {
	if f.directOn {
		if err := checkAligned(offset, int64(len(buf)), f.opts.Alignment()); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch op {
	case Read:
		n, err := unix.Pread(f.fd, buf, offset)
		if err != nil {
			return errs.NewIOError("pread", f.path, err)
		}
		if n != len(buf) {
			return errs.NewIOError("pread", f.path, fmt.Errorf("short read: got %d want %d", n, len(buf)))
		}
	case Write:
		n, err := unix.Pwrite(f.fd, buf, offset)
		if err != nil {
			return errs.NewIOError("pwrite", f.path, err)
		}
		if n != len(buf) {
			return errs.NewIOError("pwrite", f.path, fmt.Errorf("short write: got %d want %d", n, len(buf)))
		}
	default:
		return fmt.Errorf("vfs: unknown op %v", op)
	}
	return nil
}

// Discard is a no-op on SyscallFile; the OS page cache (or O_DIRECT bypass
// of it) already owns reclaiming the underlying storage.
func (f *SyscallFile) Discard(offset, length int64) error { return nil }

func (f *SyscallFile) IOType() string { return "syscall" }

func (f *SyscallFile) QueueID() int { return f.queueID }

func (f *SyscallFile) AllocatorID() int { return f.allocatorID }

// Fd returns the raw file descriptor, for backends (LinuxAIOFile) that
// need to hand it to a kernel API directly rather than going through
// Serve.
func (f *SyscallFile) Fd() int { return f.fd }

func (f *SyscallFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := unix.Close(f.fd)
	if f.opts.DeleteOnExit {
		_ = unix.Unlink(f.path)
	}
	if err != nil {
		return errs.NewIOError("close", f.path, err)
	}
	return nil
}
