package core

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/R3E-Network/session-core/sclog"
	"github.com/R3E-Network/session-core/sessionfactory"
)

// instance holds the process-wide Facade. An atomic.Pointer replaces
// the source's singleton-guarded-by-an-async-lock idiom: Shutdown swaps
// the pointer to nil so a subsequent Init deterministically builds a
// fresh instance, rather than relying on re-entrancy of a lock.
var instance atomic.Pointer[Facade]

// initMu serializes concurrent first-use so only one Facade is ever
// constructed for a given process generation.
var initMu sync.Mutex

// Init returns the process-wide Facade, constructing it on first call.
// Safe under concurrent first-use.
func Init(provider sessionfactory.ConnectionProvider, authClient AuthClient, cfg Config, logger *sclog.Logger) *Facade {
	if existing := instance.Load(); existing != nil {
		return existing
	}

	initMu.Lock()
	defer initMu.Unlock()

	if existing := instance.Load(); existing != nil {
		return existing
	}

	f := New(provider, authClient, cfg, logger)
	instance.Store(f)
	return f
}

// Get returns the current process-wide Facade, if one has been
// initialized and not yet shut down.
func Get() (*Facade, bool) {
	f := instance.Load()
	return f, f != nil
}

// Shutdown tears down the process-wide Facade and atomically clears the
// slot, so that the next Init call returns a brand new instance. Calling
// Shutdown with no instance initialized is a no-op.
func Shutdown(ctx context.Context) error {
	initMu.Lock()
	f := instance.Load()
	instance.Store(nil)
	initMu.Unlock()

	if f == nil {
		return nil
	}
	return f.Shutdown(ctx)
}
