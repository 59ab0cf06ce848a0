/*
Package extmem provides an external-memory block I/O substrate: block-level
I/O across one or more disks, with pooled asynchronous requests and a
prefetch schedule that lets streaming algorithms overlap I/O with
computation.

extmem is the foundation a container (vector, stack, priority queue, ...)
or a streaming algorithm (external sort, multiway merge, ...) is built on
top of; it does not implement those itself. It fixes block identity,
allocation, and asynchronous I/O lifecycle so higher layers can add
semantics.

# Components

  - vfs: the file backend abstraction (syscall, mmap, in-memory, AIO,
    one-file-per-block) with a synchronous Serve primitive and asynchronous
    enqueue.
  - ioengine: the Request object, per-disk request queues, the disk-queue
    registry, and statistics hooks.
  - mng: the per-disk block allocator, the block manager facade, allocation
    strategies, the typed block, the prefetch/write pools, and the prefetch
    scheduler ("prudent prefetching").

# Usage

	cfg, err := extmem.ParseDiskConfig("disk=/data/disk0,0,syscall")
	mgr, err := extmem.NewBlockManager(extmem.Config{Disks: []extmem.DiskConfig{cfg}})
	bids, err := mng.AllocateBlocks[MyBlock](mgr, mng.Striping(0, 1), 16, 4096)

# Concurrency

A BlockManager, Registry, and the pools in mng are safe for concurrent use
by multiple goroutines. A Request represents one logical wait: callers may
each hold a reference and each call Wait, but only one outstanding intent
should be polling or waiting on it at a time.

Reference: this module follows the design of the STXXL C++ library's io/
and mng/ layers, reworked into idiomatic Go.
*/
package extmem
