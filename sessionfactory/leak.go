package sessionfactory

import (
	"context"
	"sort"
	"time"

	"github.com/R3E-Network/session-core/sessionmetrics"
)

func (f *Factory) startLeakDetector() {
	ctx, cancel := context.WithCancel(context.Background())
	f.leakCancel = cancel
	f.leakDone = make(chan struct{})

	go func() {
		defer close(f.leakDone)
		ticker := time.NewTicker(f.cfg.LeakDetectionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.runLeakPass(ctx)
			}
		}
	}()
}

func (f *Factory) stopLeakDetector() {
	if f.leakCancel == nil {
		return
	}
	f.leakCancel()

	select {
	case <-f.leakDone:
	case <-time.After(2 * time.Second):
		f.logger.Warn("leak detector did not stop within grace period; abandoning")
	}
}

// runLeakPass scans the live-set once. Its own failures are swallowed
// so the detector loop is never brought down by a single bad entry —
// this is the one place in RSSF that catches broadly, by design (§7).
func (f *Factory) runLeakPass(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.WithContext(ctx).WithField("panic", r).Error("leak detector pass recovered from panic")
		}
	}()

	maxLifetime := f.cfg.MaxSessionLifetime
	if maxLifetime <= 0 {
		return
	}

	now := time.Now().UTC()

	f.mu.Lock()
	candidates := make([]*liveEntry, 0, len(f.liveSet))
	for _, e := range f.liveSet {
		candidates = append(candidates, e)
	}
	f.mu.Unlock()

	// Process ascending created_at to minimize additional leakage
	// accumulating during the scan itself.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].metrics.CreatedAt.Before(candidates[j].metrics.CreatedAt)
	})

	for _, e := range candidates {
		f.inspectEntry(ctx, e, now, maxLifetime)
	}

	f.mu.Lock()
	f.pool.LastLeakDetection = now
	f.mu.Unlock()
}

func (f *Factory) inspectEntry(ctx context.Context, e *liveEntry, now time.Time, maxLifetime time.Duration) {
	m := e.metrics
	if m.State != sessionmetrics.Active && m.State != sessionmetrics.Created {
		return
	}

	age := now.Sub(m.CreatedAt)
	if age > maxLifetime {
		f.reap(ctx, e, age)
		return
	}

	if now.Sub(m.LastActivityAt) > maxLifetime/2 {
		f.logger.LogLeakEvent(ctx, m.SessionID, age.Milliseconds(), true)
	}
}

func (f *Factory) reap(ctx context.Context, e *liveEntry, age time.Duration) {
	m := e.metrics
	m.RecordError("leaked")
	_ = f.provider.Close(e.handle.conn)
	e.handle.invalidate()
	m.Close()

	f.mu.Lock()
	delete(f.liveSet, m.SessionID)
	f.pool.RecordLeak(m.TotalTimeMS)
	f.mu.Unlock()

	f.logger.LogLeakEvent(ctx, m.SessionID, age.Milliseconds(), false)
}
