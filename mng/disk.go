package mng

import (
	"errors"

	"github.com/aalhour/extmem/internal/errs"
	"github.com/aalhour/extmem/vfs"
)

// disk is (index, config, file handle, allocator, queue id). Lifetime is
// the BlockManager's lifetime: constructed at BlockManager startup, torn
// down at Close.
type disk struct {
	index     int
	cfg       DiskConfig
	file      vfs.File
	allocator *DiskAllocator
	queueID   int
}

// DiskConfig is the parsed form of one disk configuration line,
// independent of the root package's textual parser so mng does not need to
// import the root package for this one struct. extmem.NewBlockManager
// converts a root extmem.DiskConfig into this field by field.
type DiskConfig struct {
	Path         string
	Capacity     int64
	IOKind       string
	Direct       string // "on", "off", "try"
	UnlinkOnOpen bool
	DeleteOnExit bool
	AutoGrow     bool
	QueueID      int // -1 means "use disk index"
	RawDevice    bool
	BlockSize    int64
}

func openDiskFile(cfg DiskConfig) (vfs.File, error) {
	mode := vfs.RDWR
	if !cfg.RawDevice {
		mode |= vfs.Creat
	}
	switch cfg.Direct {
	case "on":
		mode |= vfs.RequireDirect
	case "try":
		mode |= vfs.Direct
	}

	opts := vfs.FileOptions{
		Mode:         mode,
		BlockSize:    int(cfg.BlockSize),
		QueueID:      cfg.QueueID,
		UnlinkOnOpen: cfg.UnlinkOnOpen,
		DeleteOnExit: cfg.DeleteOnExit,
	}
	if opts.BlockSize == 0 {
		opts.BlockSize = vfs.DefaultBlockSize
	}

	var f vfs.File
	var err error
	switch cfg.IOKind {
	case "mmap":
		f, err = vfs.OpenMmapFile(cfg.Path, opts)
	case "memory":
		f = vfs.NewMemFile(opts)
	case "fileperblock":
		f, err = vfs.OpenFilePerBlockFile(cfg.Path, int64(opts.BlockSize), opts)
	case "linuxaio", "aio":
		f, err = vfs.OpenLinuxAIOFile(cfg.Path, opts)
	default: // "syscall", "wincall", ""
		f, err = vfs.OpenSyscallFile(cfg.Path, opts)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Capacity > 0 && !cfg.RawDevice {
		if err := f.SetSize(cfg.Capacity); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}

func (d *disk) grow(minBytes int64) (int64, error) {
	size, err := d.file.Size()
	if err != nil {
		return 0, err
	}
	newSize := size + minBytes
	if err := d.file.SetSize(newSize); err != nil {
		return 0, err
	}
	return newSize - size, nil
}

var errConfigEmptyPath = errors.New("disk path must not be empty")

func validateDiskConfig(cfg DiskConfig) error {
	if cfg.Path == "" && cfg.IOKind != "memory" {
		return &errs.ConfigError{Line: cfg.Path, Err: errConfigEmptyPath}
	}
	return nil
}
