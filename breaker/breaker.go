// Package breaker implements the Auth Dependency Circuit Breaker
// (ADCB): a three-state breaker with time-bounded calls, bounded
// half-open probing, and a named-instance audit trail.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/R3E-Network/session-core/sclog"
	"github.com/R3E-Network/session-core/scerr"
)

// State is one of the three breaker states. External observers only
// ever see one of these three; there is no partially updated state.
type State string

const (
	Closed   State = "CLOSED"
	Open     State = "OPEN"
	HalfOpen State = "HALF_OPEN"
)

const auditRingSize = 20

// Transition is one entry in the bounded state-transition audit ring.
type Transition struct {
	From   State
	To     State
	At     time.Time
	Reason string
}

// Stats is the rolling call/outcome bookkeeping for one breaker.
type Stats struct {
	TotalCalls           int64
	SuccessfulCalls      int64
	FailedCalls          int64
	ConsecutiveFailures  int64
	ConsecutiveSuccesses int64
	LastFailureAt        time.Time
	LastSuccessAt        time.Time
}

// OnStateChange is invoked (asynchronously, like the teacher's
// resilience.Config.OnStateChange) whenever the breaker transitions.
type OnStateChange func(name string, from, to State)

// CircuitBreaker wraps calls to one named external dependency.
type CircuitBreaker struct {
	name   string
	cfg    Config
	logger *sclog.Logger
	onChg  OnStateChange

	mu               sync.Mutex
	state            State
	stats            Stats
	openedAt         time.Time
	halfOpenInFlight int
	audit            []Transition
}

// New constructs a breaker in the CLOSED state.
func New(name string, cfg Config, logger *sclog.Logger, onChg OnStateChange) *CircuitBreaker {
	if logger == nil {
		logger = sclog.Default()
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		logger: logger,
		onChg:  onChg,
		state:  Closed,
	}
}

// Name returns the breaker's identity for metrics labeling.
func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a snapshot of the rolling call statistics.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stats
}

// Audit returns the bounded transition history, oldest first.
func (cb *CircuitBreaker) Audit() []Transition {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	out := make([]Transition, len(cb.audit))
	copy(out, cb.audit)
	return out
}

// FailureRate returns failed/total over all recorded calls, 0 when no
// calls have been recorded yet.
func (cb *CircuitBreaker) FailureRate() float64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.stats.TotalCalls == 0 {
		return 0
	}
	return float64(cb.stats.FailedCalls) / float64(cb.stats.TotalCalls)
}

// Execute runs fn under the breaker's call_timeout and state machine.
// It returns CircuitBreakerOpen, CircuitBreakerHalfOpen,
// CircuitBreakerTimeout when call_timeout elapses, the caller's own
// (unwrapped) context error on caller cancellation, or fn's own error.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	isProbe, err := cb.beforeRequest()
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, cb.cfg.CallTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx)
	}()

	select {
	case err := <-done:
		cb.afterRequest(isProbe, err)
		return err
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			timeoutErr := scerr.BreakerTimeout(cb.name)
			cb.afterRequest(isProbe, timeoutErr)
			return timeoutErr
		}
		// Parent ctx was cancelled by the caller, not by call_timeout.
		cancelErr := ctx.Err()
		cb.afterRequest(isProbe, cancelErr)
		return cancelErr
	}
}

func (cb *CircuitBreaker) beforeRequest() (isProbe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		return false, nil
	case Open:
		if time.Since(cb.openedAt) >= cb.cfg.RecoveryTimeout {
			cb.setStateLocked(HalfOpen, "recovery timeout elapsed")
			cb.halfOpenInFlight++
			return true, nil
		}
		return false, scerr.BreakerOpen(cb.name)
	case HalfOpen:
		if cb.halfOpenInFlight >= cb.cfg.HalfOpenMaxInFlight {
			return false, scerr.BreakerHalfOpen(cb.name)
		}
		cb.halfOpenInFlight++
		return true, nil
	default:
		return false, scerr.BreakerOpen(cb.name)
	}
}

func (cb *CircuitBreaker) afterRequest(wasProbe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if wasProbe && cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}

	cb.stats.TotalCalls++
	now := time.Now().UTC()

	if err == nil {
		cb.stats.SuccessfulCalls++
		cb.stats.ConsecutiveSuccesses++
		cb.stats.ConsecutiveFailures = 0
		cb.stats.LastSuccessAt = now

		if cb.state == HalfOpen && cb.stats.ConsecutiveSuccesses >= int64(cb.cfg.SuccessThreshold) {
			cb.resetLocked()
			cb.setStateLocked(Closed, "half-open probe successes reached success_threshold")
		}
		return
	}

	cb.stats.FailedCalls++
	cb.stats.ConsecutiveFailures++
	cb.stats.ConsecutiveSuccesses = 0
	cb.stats.LastFailureAt = now

	switch cb.state {
	case Closed:
		if cb.shouldOpenLocked() {
			cb.openedAt = now
			cb.setStateLocked(Open, "failure threshold or failure rate exceeded")
		}
	case HalfOpen:
		cb.openedAt = now
		cb.setStateLocked(Open, "half-open probe failed")
	}
}

func (cb *CircuitBreaker) shouldOpenLocked() bool {
	if cb.stats.ConsecutiveFailures >= int64(cb.cfg.FailureThreshold) {
		return true
	}
	if cb.stats.TotalCalls >= int64(cb.cfg.MinCallsForRate) {
		rate := float64(cb.stats.FailedCalls) / float64(cb.stats.TotalCalls)
		if rate >= cb.cfg.FailureRateThreshold {
			return true
		}
	}
	return false
}

func (cb *CircuitBreaker) setStateLocked(to State, reason string) {
	from := cb.state
	cb.state = to
	cb.audit = append(cb.audit, Transition{From: from, To: to, At: time.Now().UTC(), Reason: reason})
	if len(cb.audit) > auditRingSize {
		cb.audit = cb.audit[len(cb.audit)-auditRingSize:]
	}
	name, logger, onChg := cb.name, cb.logger, cb.onChg
	go func() {
		logger.LogBreakerTransition(context.Background(), name, string(from), string(to))
		if onChg != nil {
			onChg(name, from, to)
		}
	}()
}

func (cb *CircuitBreaker) resetLocked() {
	cb.stats = Stats{}
	cb.halfOpenInFlight = 0
}

// Reset is idempotent and returns the breaker to CLOSED with zeroed
// counters, regardless of its current state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == Closed && cb.stats == (Stats{}) {
		return
	}
	cb.resetLocked()
	cb.setStateLocked(Closed, "manual reset")
}
