// Package sessionfactory implements the Request-Scoped Session Factory
// (RSSF): the only way application code obtains a database session. It
// tags every session with its owning identity, tracks it in an
// in-memory live-set, and reaps sessions that outlive their budget.
package sessionfactory

import (
	"context"
	"sync"
	"time"

	"github.com/R3E-Network/session-core/identity"
	"github.com/R3E-Network/session-core/scerr"
	"github.com/R3E-Network/session-core/sclog"
	"github.com/R3E-Network/session-core/scopevalidator"
	"github.com/R3E-Network/session-core/sessionmetrics"
)

// Config tunes RSSF behavior; see spec §6 "Configuration knobs".
type Config struct {
	MaxSessionLifetime    time.Duration
	LeakDetectionInterval time.Duration
	LeakDetectionEnabled  bool
	AcquireTimeout        time.Duration
}

// DefaultConfig mirrors the source's interactive-workload defaults.
func DefaultConfig() Config {
	return Config{
		MaxSessionLifetime:    30 * time.Second,
		LeakDetectionInterval: 60 * time.Second,
		LeakDetectionEnabled:  true,
		AcquireTimeout:        5 * time.Second,
	}
}

// Options overrides per-scope behavior.
type Options struct {
	Timeout             time.Duration
	MaxLifetimeOverride time.Duration
}

// Handle is the tagged session RSSF yields to caller code. It
// implements scopevalidator.SessionHolder so ValidateNoStoredSessions
// can detect a consumer capturing one beyond its scope.
type Handle struct {
	conn      any
	tag       scopevalidator.Tag
	metrics   *sessionmetrics.Session
	mu        sync.Mutex
	invalid   bool
}

func (h *Handle) IsSessionHandle() bool { return true }

// Conn returns the underlying provider handle for use by caller code,
// failing with SessionLifecycleError if the scope has already exited.
func (h *Handle) Conn() (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.invalid {
		return nil, scerr.Lifecycle("session handle used after scope exit")
	}
	return h.conn, nil
}

func (h *Handle) invalidate() {
	h.mu.Lock()
	h.invalid = true
	h.mu.Unlock()
}

// Tag returns the identity/flags attached to this session.
func (h *Handle) Tag() scopevalidator.Tag { return h.tag }

// Metrics returns the session's own metrics record.
func (h *Handle) Metrics() *sessionmetrics.Session { return h.metrics }

type liveEntry struct {
	handle  *Handle
	metrics *sessionmetrics.Session
}

// Factory is one instance of the Request-Scoped Session Factory.
type Factory struct {
	provider ConnectionProvider
	cfg      Config
	logger   *sclog.Logger

	mu       sync.Mutex
	liveSet  map[string]*liveEntry
	pool     sessionmetrics.Pool

	leakCancel context.CancelFunc
	leakDone   chan struct{}
	closeOnce  sync.Once
}

// New constructs a Factory and, if enabled, starts its leak detector.
func New(provider ConnectionProvider, cfg Config, logger *sclog.Logger) *Factory {
	if logger == nil {
		logger = sclog.Default()
	}
	f := &Factory{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		liveSet:  make(map[string]*liveEntry),
	}
	if cfg.LeakDetectionEnabled {
		f.startLeakDetector()
	}
	return f
}

// Run acquires a scoped session for identity, invokes fn, and
// guarantees teardown runs exactly once on exit — success, caller
// error, or panic-free failure path. This is the Go-idiomatic
// replacement for an async context manager: the defer is the teardown
// action, always executed.
func (f *Factory) Run(ctx context.Context, id identity.Identity, opts Options, fn func(ctx context.Context, h *Handle) error) (err error) {
	handle, entry, acquireErr := f.acquire(ctx, id, opts)
	if acquireErr != nil {
		return acquireErr
	}

	defer func() {
		if teardownErr := f.teardown(ctx, handle, entry, err); teardownErr != nil && err == nil {
			err = teardownErr
		}
	}()

	err = fn(ctx, handle)
	return err
}

func (f *Factory) acquire(ctx context.Context, id identity.Identity, opts Options) (*Handle, *liveEntry, error) {
	acquireCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	conn, err := f.provider.Open(acquireCtx)
	if err != nil {
		f.mu.Lock()
		status, statusErr := f.provider.PoolStatus(ctx)
		exhausted := statusErr == nil && status.Waiters > 0
		f.mu.Unlock()
		acqErr := scerr.ConnectionAcquire(err).WithSession(id.SessionID, id.UserID, id.RequestID)
		if exhausted {
			f.mu.Lock()
			f.pool.RecordPoolExhaustion()
			f.mu.Unlock()
		}
		return nil, nil, acqErr
	}

	tag := scopevalidator.NewTag(id)
	metrics := sessionmetrics.New(id.SessionID, id.RequestID, id.UserID)
	handle := &Handle{conn: conn, tag: tag, metrics: metrics}

	if err := scopevalidator.Validate(&tag, id.UserID); err != nil {
		_ = f.provider.Close(conn)
		return nil, nil, err
	}

	entry := &liveEntry{handle: handle, metrics: metrics}

	f.mu.Lock()
	f.liveSet[id.SessionID] = entry
	f.pool.IncrementActive()
	f.mu.Unlock()

	f.logger.LogSessionEvent(ctx, "acquired", string(metrics.State), nil)
	return handle, entry, nil
}

func (f *Factory) teardown(ctx context.Context, handle *Handle, entry *liveEntry, callerErr error) error {
	if handle == nil || entry == nil {
		return nil
	}

	metrics := entry.metrics

	// Already finalized by a concurrent reaper pass or a prior teardown:
	// close/unregister is idempotent, so skip re-running the bookkeeping
	// that would otherwise double-count pool counters.
	if metrics.State == sessionmetrics.Closed {
		return nil
	}

	if callerErr != nil {
		metrics.RecordError(callerErr.Error())
		if f.provider.InTransaction(handle.conn) {
			if rbErr := f.provider.Rollback(handle.conn); rbErr != nil {
				f.logger.LogSessionEvent(ctx, "rollback_failed", string(metrics.State), rbErr)
			}
		}
	} else if metrics.State == sessionmetrics.Active || metrics.State == sessionmetrics.Created {
		metrics.Commit()
	}

	closeErr := f.provider.Close(handle.conn)
	handle.invalidate()
	metrics.Close()

	f.mu.Lock()
	delete(f.liveSet, metrics.SessionID)
	f.pool.RecordClose(metrics.TotalTimeMS)
	f.mu.Unlock()

	if closeErr != nil {
		f.logger.LogSessionEvent(ctx, "close_failed", string(metrics.State), closeErr)
		if callerErr == nil {
			// close failed with no caller error in flight; propagate the
			// close failure itself, per spec §4.4 failure semantics.
			return closeErr
		}
		return nil
	}

	f.logger.LogSessionEvent(ctx, "closed", string(metrics.State), nil)
	return nil
}

// MarkRolledBack lets caller code inside a scope explicitly choose
// ROLLED_BACK over the default COMMITTED outcome on normal exit.
func MarkRolledBack(h *Handle) {
	h.metrics.RollBack()
}

// Health reports the factory's own view for the facade's aggregate report.
type Health struct {
	Active        int64
	TotalCreated  int64
	TotalClosed   int64
	Leaked        int64
	Peak          int64
	AvgLifetimeMS float64
}

func (f *Factory) Health() Health {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Health{
		Active:        f.pool.ActiveSessions,
		TotalCreated:  f.pool.TotalSessionsCreated,
		TotalClosed:   f.pool.SessionsClosed,
		Leaked:        f.pool.LeakedSessions,
		Peak:          f.pool.PeakConcurrentSessions,
		AvgLifetimeMS: f.pool.AvgSessionLifetimeMS,
	}
}

// LiveCount returns the current live-set size, for tests and monitoring.
func (f *Factory) LiveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.liveSet)
}

// Close cancels the leak detector, forcibly closes every live session
// with reason "factory shutdown — forced cleanup", and clears the
// live-set. Idempotent: a second Close is a no-op.
func (f *Factory) Close(ctx context.Context) error {
	var err error
	f.closeOnce.Do(func() {
		f.stopLeakDetector()

		f.mu.Lock()
		entries := make([]*liveEntry, 0, len(f.liveSet))
		for _, e := range f.liveSet {
			entries = append(entries, e)
		}
		f.mu.Unlock()

		for _, e := range entries {
			e.metrics.RecordError("factory shutdown — forced cleanup")
			_ = f.provider.Close(e.handle.conn)
			e.handle.invalidate()
			e.metrics.Close()

			f.mu.Lock()
			delete(f.liveSet, e.metrics.SessionID)
			f.pool.RecordClose(e.metrics.TotalTimeMS)
			f.mu.Unlock()
		}

		f.logger.LogSessionEvent(ctx, "factory_shutdown", "CLOSED", nil)
	})
	return err
}
