//go:build linux

package vfs

// LinuxAIOFile is the file backend used by ioengine's kernel-AIO queue.
// Its Serve method is the synchronous fallback (used when a request is
// dispatched to a non-AIO queue, or during tests); the AIO queue itself
// bypasses Serve and submits io_submit control blocks directly against
// Fd(), completing them on its reaper goroutine.
//
// Reference: original_source io/linuxaio_file.cpp keeps the plain
// pread/pwrite path alongside the io_submit path for exactly this reason
// (a request may be served synchronously if the AIO ring is saturated).
type LinuxAIOFile struct {
	*SyscallFile
}

// OpenLinuxAIOFile opens path for use with the kernel-AIO queue. Direct
// I/O is required: Linux's native AIO only reliably completes
// asynchronously against O_DIRECT descriptors.
func OpenLinuxAIOFile(path string, opts FileOptions) (*LinuxAIOFile, error) {
	opts.Mode |= RequireDirect
	sf, err := OpenSyscallFile(path, opts)
	if err != nil {
		return nil, err
	}
	return &LinuxAIOFile{SyscallFile: sf}, nil
}

func (f *LinuxAIOFile) IOType() string { return "linuxaio" }
