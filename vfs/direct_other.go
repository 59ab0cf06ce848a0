//go:build !linux

package vfs

// directOpenFlag is 0 on non-Linux platforms: there is no O_DIRECT.
// SyscallFile.Serve still checks alignment when opts.Mode&Direct was
// requested, which is the closest observable behavior Go can offer without
// platform-specific fcntl(F_NOCACHE) handling (RockyardKV's
// vfs/direct_io_darwin.go shows that path for a future port).
const directOpenFlag = 0

// directIOSupported is false outside Linux: SyscallFile has no real
// O_DIRECT-equivalent path here, only stricter alignment checking.
const directIOSupported = false
