package extmem

import "github.com/aalhour/extmem/mng"

// NewBlockManager builds a mng.BlockManager from cfg's parsed disk
// configuration lines, converting the root package's textual DiskConfig
// into mng's internal one. This is the thin facade doc.go's usage example
// calls through; callers who already have mng.DiskConfig values (tests,
// mostly) can call mng.NewBlockManager directly.
func NewBlockManager(cfg Config) (*mng.BlockManager, error) {
	if cfg.Debug {
		SetDebugAssertions(true)
	}

	disks := make([]mng.DiskConfig, len(cfg.Disks))
	for i, d := range cfg.Disks {
		disks[i] = mng.DiskConfig{
			Path:         d.Path,
			Capacity:     d.Capacity,
			IOKind:       string(d.IOKind),
			Direct:       d.Direct.String(),
			UnlinkOnOpen: d.UnlinkOnOpen,
			DeleteOnExit: d.DeleteOnExit,
			AutoGrow:     d.AutoGrow,
			QueueID:      d.QueueID,
			RawDevice:    d.RawDevice,
			BlockSize:    int64(cfg.Alignment()),
		}
	}
	return mng.NewBlockManager(disks, nil, nil)
}
