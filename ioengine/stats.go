package ioengine

import (
	"sync/atomic"
	"time"

	"github.com/aalhour/extmem/vfs"
)

// Stats holds the counters and timers the core increments at fixed
// points: read/write begin/end, wait begin/end, pool steals/hits. All
// fields are atomics so concurrent Request workers can update them
// without a lock; readers get an approximate snapshot — acceptable since
// these are observability counters, not something correctness depends on.
type Stats struct {
	ReadsStarted   atomic.Int64
	ReadsFinished  atomic.Int64
	ReadBytes      atomic.Int64
	ReadNanos      atomic.Int64
	WritesStarted  atomic.Int64
	WritesFinished atomic.Int64
	WriteBytes     atomic.Int64
	WriteNanos     atomic.Int64

	WaitsOnRead  atomic.Int64
	WaitsOnWrite atomic.Int64

	PoolSteals atomic.Int64
	PoolHits   atomic.Int64
}

// NewStats returns a zeroed Stats.
func NewStats() *Stats { return &Stats{} }

// DefaultStats is a package-wide Stats instance. Nothing in this module
// assigns it anywhere: a request whose Stats is nil records nothing, and
// each Registry carries its own *Stats.
var DefaultStats = NewStats()

func (s *Stats) begin(op vfs.OpType) time.Time {
	if s == nil {
		return time.Time{}
	}
	if op == vfs.Write {
		s.WritesStarted.Add(1)
	} else {
		s.ReadsStarted.Add(1)
	}
	return time.Now()
}

func (s *Stats) end(op vfs.OpType, start time.Time, bytes int) {
	if s == nil {
		return
	}
	elapsed := time.Since(start)
	if op == vfs.Write {
		s.WritesFinished.Add(1)
		s.WriteBytes.Add(int64(bytes))
		s.WriteNanos.Add(elapsed.Nanoseconds())
	} else {
		s.ReadsFinished.Add(1)
		s.ReadBytes.Add(int64(bytes))
		s.ReadNanos.Add(elapsed.Nanoseconds())
	}
}

func (s *Stats) waitBegin(op vfs.OpType) {
	if s == nil {
		return
	}
	if op == vfs.Write {
		s.WaitsOnWrite.Add(1)
	} else {
		s.WaitsOnRead.Add(1)
	}
}

// RecordSteal increments the pool-steal counter (a caller blocked in
// steal()/hint() before a slot became free).
func (s *Stats) RecordSteal() {
	if s != nil {
		s.PoolSteals.Add(1)
	}
}

// RecordHit increments the pool-hit counter (a caller's read() matched an
// already in-flight prefetch).
func (s *Stats) RecordHit() {
	if s != nil {
		s.PoolHits.Add(1)
	}
}
