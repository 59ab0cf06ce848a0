package ioengine

import "sync"

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide lazily-initialized Registry singleton,
// per the design note "state the lifecycle explicitly — initialized on
// first use from a process-wide lazy holder". Tests should construct
// their own Registry with NewRegistry instead of touching this.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry(0)
	})
	return defaultRegistry
}
