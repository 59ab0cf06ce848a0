//go:build linux

package vfs

import "golang.org/x/sys/unix"

// directOpenFlag is OR'd into the open(2) flags to request O_DIRECT.
//
// Reference: RockyardKV's internal/vfs/direct_io_linux.go uses the same
// flag via the lower-level syscall package; SyscallFile reaches it through
// golang.org/x/sys/unix instead, since unix already gives us pread/pwrite.
const directOpenFlag = unix.O_DIRECT

// directIOSupported is true on Linux: O_DIRECT is available.
const directIOSupported = true
