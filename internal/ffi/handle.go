package ffi

import (
	"sync"
	"sync/atomic"

	"github.com/paramstore/paramstore/internal/engine"
)

// Handle stands in for the C ABI's opaque instance pointer. Go cannot hand
// out a raw, caller-dereferenceable pointer and validate its alignment the
// way a C instance pointer would be, so the facade instead issues a
// monotonically increasing integer handle backed by a registry; the
// null-pointer and unaligned-pointer checks of a C contract become
// "handle == 0" and "handle not present in the registry" here.
type Handle uint64

var (
	registryMu sync.RWMutex
	registry = make(map[Handle]*engine.Engine)
	nextHandle uint64
)

// Register stores e and returns the handle a C caller should hold onto.
func Register(e *engine.Engine) Handle {
	h := Handle(atomic.AddUint64(&nextHandle, 1))
	registryMu.Lock()
	registry[h] = e
	registryMu.Unlock()
	return h
}

// lookup resolves h to its engine, or ErrInvalidHandle if h is zero or
// unknown. A null or unregistered handle is always rejected.
func lookup(h Handle) (*engine.Engine, error) {
	if h == 0 {
		return nil, ErrInvalidHandle
	}
	registryMu.RLock()
	e, ok := registry[h]
	registryMu.RUnlock()
	if !ok {
		return nil, ErrInvalidHandle
	}
	return e, nil
}

// Release removes h from the registry. It does not close the underlying
// engine; callers that want that must Close it themselves first.
func Release(h Handle) {
	registryMu.Lock()
	delete(registry, h)
	registryMu.Unlock()
}
