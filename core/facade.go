// Package core exposes the Core Facade (C7): the single entry point
// external collaborators use to obtain scoped sessions and to
// authenticate callers, without needing to know about RSSF or ADCB
// individually.
package core

import (
	"context"
	"sync"
	"time"

	"github.com/R3E-Network/session-core/breaker"
	"github.com/R3E-Network/session-core/identity"
	"github.com/R3E-Network/session-core/scerr"
	"github.com/R3E-Network/session-core/sclog"
	"github.com/R3E-Network/session-core/sessionfactory"
)

// AuthVerdict is the result of a token validation.
type AuthVerdict struct {
	Valid       bool
	UserID      string
	Email       string
	Permissions []string
	Degraded    bool
}

// AuthClient is the thin client ADCB wraps calls to; see spec §6
// "Auth Service".
type AuthClient interface {
	Validate(ctx context.Context, token string) (AuthVerdict, error)
	Logout(ctx context.Context, token string) error
	Health(ctx context.Context) error
}

// Config assembles every tunable knob the facade's owned components need.
type Config struct {
	Session       sessionfactory.Config
	Breaker       breaker.Config
	TokenCacheTTL time.Duration
}

// DefaultConfig wires the factory and breaker defaults together.
func DefaultConfig() Config {
	return Config{
		Session:       sessionfactory.DefaultConfig(),
		Breaker:       breaker.DefaultConfig(),
		TokenCacheTTL: breaker.DefaultTokenCacheTTL,
	}
}

// Facade owns one RSSF instance and exactly one breaker, named
// "auth_service"; it holds no registry for further named breakers, and
// Health reports only that one. Lock order, when both are ever needed by a
// future operation: breaker mutex before factory mutex — never the
// reverse. Today no single call path takes both.
type Facade struct {
	factory     *sessionfactory.Factory
	provider    sessionfactory.ConnectionProvider
	authClient  AuthClient
	authBreaker *breaker.CircuitBreaker
	tokenCache  *breaker.TokenCache
	logger      *sclog.Logger

	shutdownOnce sync.Once
}

// New constructs a Facade. It does not register itself as the process
// singleton — use Init for that.
func New(provider sessionfactory.ConnectionProvider, authClient AuthClient, cfg Config, logger *sclog.Logger) *Facade {
	if logger == nil {
		logger = sclog.Default()
	}
	factory := sessionfactory.New(provider, cfg.Session, logger)
	authBreaker := breaker.New("auth_service", cfg.Breaker, logger, nil)
	tokenCache := breaker.NewTokenCache(cfg.TokenCacheTTL)

	return &Facade{
		factory:     factory,
		provider:    provider,
		authClient:  authClient,
		authBreaker: authBreaker,
		tokenCache:  tokenCache,
		logger:      logger,
	}
}

// WithSession delegates to RSSF: acquire, tag, yield, and guarantee
// teardown for a scoped operation on behalf of identity.
func (f *Facade) WithSession(ctx context.Context, id identity.Identity, opts sessionfactory.Options, fn func(ctx context.Context, h *sessionfactory.Handle) error) error {
	return f.factory.Run(ctx, id, opts, fn)
}

// Authenticate validates token through the auth breaker. On a breaker
// OPEN/HALF_OPEN rejection it serves a degraded verdict from the token
// cache when one exists, else fails with AuthUnavailable.
func (f *Facade) Authenticate(ctx context.Context, token string) (AuthVerdict, error) {
	var verdict AuthVerdict
	err := f.authBreaker.Execute(ctx, func(callCtx context.Context) error {
		v, callErr := f.authClient.Validate(callCtx, token)
		if callErr != nil {
			return callErr
		}
		verdict = v
		return nil
	})

	if err == nil {
		if verdict.Valid {
			f.tokenCache.Put(token, breaker.Verdict{
				Valid:       true,
				UserID:      verdict.UserID,
				Email:       verdict.Email,
				Permissions: verdict.Permissions,
			})
		}
		return verdict, nil
	}

	if scerr.Is(err, scerr.CircuitBreakerOpen) || scerr.Is(err, scerr.CircuitBreakerHalfOpen) {
		if cached, ok := f.tokenCache.Get(token); ok {
			return AuthVerdict{
				Valid:       cached.Valid,
				UserID:      cached.UserID,
				Email:       cached.Email,
				Permissions: cached.Permissions,
				Degraded:    true,
			}, nil
		}
		return AuthVerdict{}, scerr.AuthUnavail(err)
	}

	return AuthVerdict{}, err
}

// Logout purges the token's cached verdict, then delegates to the auth
// client — the facade, not ADCB, owns cache invalidation on logout.
func (f *Facade) Logout(ctx context.Context, token string) error {
	f.tokenCache.Invalidate(token)
	return f.authClient.Logout(ctx, token)
}

// BreakerReport is one named breaker's contribution to the health report.
type BreakerReport struct {
	State                string
	FailureRate          float64
	ConsecutiveFailures  int64
	LastFailureAt        time.Time
	LastSuccessAt        time.Time
	RecentTransitions    []breaker.Transition
}

// HealthReport is the facade's aggregate health view (spec §6).
type HealthReport struct {
	Status   string
	Factory  sessionfactory.Health
	Pool     sessionfactory.PoolStatus
	Breakers map[string]BreakerReport
}

// Health aggregates pool metrics, breaker stats, and a provider probe.
func (f *Facade) Health(ctx context.Context) HealthReport {
	factoryHealth := f.factory.Health()
	poolStatus, _ := f.provider.PoolStatus(ctx)

	status := "healthy"
	if err := f.provider.Health(ctx); err != nil {
		status = "unhealthy"
	}

	stats := f.authBreaker.Stats()
	breakers := map[string]BreakerReport{
		f.authBreaker.Name(): {
			State:               string(f.authBreaker.State()),
			FailureRate:         f.authBreaker.FailureRate(),
			ConsecutiveFailures: stats.ConsecutiveFailures,
			LastFailureAt:       stats.LastFailureAt,
			LastSuccessAt:       stats.LastSuccessAt,
			RecentTransitions:   f.authBreaker.Audit(),
		},
	}

	return HealthReport{Status: status, Factory: factoryHealth, Pool: poolStatus, Breakers: breakers}
}

// Shutdown closes RSSF then the token cache. Idempotent.
func (f *Facade) Shutdown(ctx context.Context) error {
	var err error
	f.shutdownOnce.Do(func() {
		err = f.factory.Close(ctx)
		f.tokenCache.Close()
	})
	return err
}
