package ioengine

import "github.com/aalhour/extmem/vfs"

// ARead constructs a Request for a read of len(buf) bytes at offset
// against f, and dispatches it through reg. onComplete may be nil.
//
// ARead/AWrite live here rather than as methods on vfs.File so that vfs
// stays a leaf package: File implementations never need to know about
// Request or Registry.
func ARead(reg *Registry, f vfs.File, buf []byte, offset int64, onComplete CompletionHandler) (*Request, error) {
	return dispatch(reg, f, buf, offset, vfs.Read, onComplete)
}

// AWrite constructs a Request for a write of len(buf) bytes at offset
// against f, and dispatches it through reg.
func AWrite(reg *Registry, f vfs.File, buf []byte, offset int64, onComplete CompletionHandler) (*Request, error) {
	return dispatch(reg, f, buf, offset, vfs.Write, onComplete)
}

func dispatch(reg *Registry, f vfs.File, buf []byte, offset int64, op vfs.OpType, onComplete CompletionHandler) (*Request, error) {
	req := newRequest(f, buf, offset, op, onComplete, reg.Stats)
	if err := reg.Dispatch(req); err != nil {
		return nil, err
	}
	return req, nil
}
