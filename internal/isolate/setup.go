// Package isolate implements the JS isolate pool and the host/guest
// bridge: a bounded pool of dedicated-OS-thread V8 workers, each
// running one tenant's code behind a single trampoline function,
// grounded on the v8go isolate-pool pattern in cryguy/worker's
// internal/v8engine package and on the original implementation's js.rs.
package isolate

import "time"

// Setup is the reusability key for a worker: two requests may share a
// worker only if their Setup values are equal.
type Setup struct {
	ContextID string
	CodeHash  string
	Code      string
	HeapCap   uint64
	Timeout   time.Duration
}

// DefaultTimeout and DefaultHeapCap mirror the original implementation's
// JsSetup::default (10s timeout, 32MiB heap).
const (
	DefaultTimeout = 10 * time.Second
	DefaultHeapCap = 32 * 1024 * 1024
)

// DefaultIdlePrune is how long a worker may sit unused in the pool
// before the prune task disposes it.
const DefaultIdlePrune = 5 * time.Second
