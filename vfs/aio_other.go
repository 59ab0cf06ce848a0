//go:build !linux

package vfs

// LinuxAIOFile degrades to plain SyscallFile semantics outside Linux: no
// kernel-AIO syscalls exist, so the "AIO queue" variant of ioengine falls
// back to its splitQueue implementation and just calls Serve like any
// other backend. Mirrors the direct_linux.go/direct_other.go
// split-by-build-tag idiom used one layer down for direct I/O.
type LinuxAIOFile struct {
	*SyscallFile
}

// OpenLinuxAIOFile opens path with ordinary (non-direct) syscall semantics.
func OpenLinuxAIOFile(path string, opts FileOptions) (*LinuxAIOFile, error) {
	sf, err := OpenSyscallFile(path, opts)
	if err != nil {
		return nil, err
	}
	return &LinuxAIOFile{SyscallFile: sf}, nil
}

func (f *LinuxAIOFile) IOType() string { return "linuxaio" }
