// Package sessionmetrics holds the single canonical per-session and
// per-factory metrics schemas. This is the system's SSOT: no other
// package may define a competing "SessionMetrics"-shaped type, and the
// field names below are the only names any log or error path may use.
package sessionmetrics

import "time"

// State is the lifecycle state of a single session.
type State string

const (
	Created    State = "CREATED"
	Active     State = "ACTIVE"
	Committed  State = "COMMITTED"
	RolledBack State = "ROLLED_BACK"
	Closed     State = "CLOSED"
	Error      State = "ERROR"
)

// Session is the one authoritative per-session metrics record.
//
// Field names are part of the contract: last_activity_at (never
// last_activity), query_count and transaction_count (never
// operations_count), error_count (never errors). A reflection-based
// test asserts this exact field set.
type Session struct {
	SessionID       string
	RequestID       string
	UserID          string
	State           State
	CreatedAt       time.Time
	LastActivityAt  time.Time
	ClosedAt        time.Time
	QueryCount      int64
	TransactionCount int64
	ErrorCount      int64
	LastError       string
	TotalTimeMS     int64
}

// New creates a session metrics record in the CREATED state.
func New(sessionID, requestID, userID string) *Session {
	now := time.Now().UTC()
	return &Session{
		SessionID:      sessionID,
		RequestID:      requestID,
		UserID:         userID,
		State:          Created,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// MarkActivity records a use of the session, transitioning CREATED to
// ACTIVE on first use.
func (s *Session) MarkActivity() {
	if s.terminal() {
		return
	}
	if s.State == Created {
		s.State = Active
	}
	s.LastActivityAt = time.Now().UTC()
}

// RecordQuery increments the query counter and marks activity.
func (s *Session) RecordQuery() {
	if s.terminal() {
		return
	}
	s.QueryCount++
	s.MarkActivity()
}

// RecordTransaction increments the transaction counter and marks activity.
func (s *Session) RecordTransaction() {
	if s.terminal() {
		return
	}
	s.TransactionCount++
	s.MarkActivity()
}

// RecordError increments error_count, records last_error, transitions
// to ERROR, and marks activity. ERROR remains terminal for tracking
// purposes except that a subsequent Close is still permitted (forced
// cleanup may close an already-errored session).
func (s *Session) RecordError(msg string) {
	if s.State == Closed {
		return
	}
	s.ErrorCount++
	s.LastError = msg
	s.State = Error
	s.LastActivityAt = time.Now().UTC()
}

// Commit transitions ACTIVE to COMMITTED. A no-op once terminal.
func (s *Session) Commit() {
	if s.State == Active || s.State == Created {
		s.State = Committed
	}
}

// RollBack transitions ACTIVE to ROLLED_BACK. A no-op once terminal.
func (s *Session) RollBack() {
	if s.State == Active || s.State == Created {
		s.State = RolledBack
	}
}

// Close finalizes the record: sets closed_at, state CLOSED, and computes
// total_time_ms exactly once. Calling Close on an already-closed record
// is a no-op (idempotent close).
func (s *Session) Close() {
	if s.State == Closed {
		return
	}
	s.ClosedAt = time.Now().UTC()
	s.TotalTimeMS = s.ClosedAt.Sub(s.CreatedAt).Milliseconds()
	s.State = Closed
}

func (s *Session) terminal() bool {
	return s.State == Closed || s.State == Error
}

// Pool is the one authoritative per-factory aggregate metrics record.
type Pool struct {
	ActiveSessions          int64
	TotalSessionsCreated    int64
	SessionsClosed          int64
	LeakedSessions          int64
	PoolExhaustionEvents    int64
	CircuitBreakerTrips     int64
	PeakConcurrentSessions  int64
	AvgSessionLifetimeMS    float64
	LastPoolExhaustion      time.Time
	LastLeakDetection       time.Time
}

// IncrementActive records a newly registered session and keeps the peak
// concurrency watermark monotonic with it.
func (p *Pool) IncrementActive() {
	p.TotalSessionsCreated++
	p.ActiveSessions++
	p.UpdatePeakConcurrent(p.ActiveSessions)
}

// UpdatePeakConcurrent raises peak_concurrent_sessions if n exceeds it.
func (p *Pool) UpdatePeakConcurrent(n int64) {
	if n > p.PeakConcurrentSessions {
		p.PeakConcurrentSessions = n
	}
}

// RecordClose folds a closed session's lifetime into the streaming mean
// and decrements active_sessions.
func (p *Pool) RecordClose(lifetimeMS int64) {
	if p.ActiveSessions > 0 {
		p.ActiveSessions--
	}
	p.SessionsClosed++
	p.AvgSessionLifetimeMS += (float64(lifetimeMS) - p.AvgSessionLifetimeMS) / float64(p.SessionsClosed)
}

// RecordPoolExhaustion increments the exhaustion counter and timestamps it.
func (p *Pool) RecordPoolExhaustion() {
	p.PoolExhaustionEvents++
	p.LastPoolExhaustion = time.Now().UTC()
}

// RecordLeak increments leaked_sessions and records a close for the
// streaming average, then timestamps the detection pass.
func (p *Pool) RecordLeak(lifetimeMS int64) {
	p.LeakedSessions++
	p.RecordClose(lifetimeMS)
	p.LastLeakDetection = time.Now().UTC()
}

// RecordBreakerTrip increments circuit_breaker_trips.
func (p *Pool) RecordBreakerTrip() {
	p.CircuitBreakerTrips++
}
