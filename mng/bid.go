package mng

import "github.com/aalhour/extmem/vfs"

// BID identifies one block: the file it lives in, its byte offset, and its
// byte size.
type BID struct {
	File   vfs.File
	Offset int64
	Size   int64
}

// Aligned reports whether b's offset and size are both multiples of
// alignment, and the extent b describes lies within [0, fileSize).
func (b BID) Aligned(alignment int, fileSize int64) bool {
	if alignment <= 0 {
		return false
	}
	a := int64(alignment)
	if b.Offset%a != 0 || b.Size%a != 0 {
		return false
	}
	if b.Offset < 0 || b.Size < 0 {
		return false
	}
	return b.Offset+b.Size <= fileSize
}
