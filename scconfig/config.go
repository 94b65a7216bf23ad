// Package scconfig loads the tunable knobs for the session factory,
// the auth circuit breaker, and the token cache from the process
// environment, grounded on the teacher's infrastructure/config and
// infrastructure/runtime packages.
package scconfig

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/R3E-Network/session-core/breaker"
	"github.com/R3E-Network/session-core/sessionfactory"
)

// Environment mirrors the teacher's runtime.Environment: a lightweight,
// environment-variable-derived deployment tier.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// ParseEnvironment parses a string (case-insensitive) into a known
// Environment, defaulting to Development for anything unrecognized.
func ParseEnvironment(raw string) (env Environment, ok bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch Environment(raw) {
	case Development, Testing, Production:
		return Environment(raw), true
	default:
		return Development, false
	}
}

// CurrentEnvironment reads SESSION_CORE_ENV (preferred) or ENVIRONMENT
// (legacy fallback), defaulting to Development.
func CurrentEnvironment() Environment {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("SESSION_CORE_ENV")))
	if raw == "" {
		raw = strings.ToLower(strings.TrimSpace(os.Getenv("ENVIRONMENT")))
	}
	if env, ok := ParseEnvironment(raw); ok {
		return env
	}
	return Development
}

func IsProduction() bool { return CurrentEnvironment() == Production }

// envFields is decoded directly via envdecode; durations and bools
// parse with their native envdecode converters.
type envFields struct {
	SessionMaxLifetime     time.Duration `env:"SESSION_MAX_LIFETIME,default=30s"`
	SessionLeakInterval    time.Duration `env:"SESSION_LEAK_DETECTION_INTERVAL,default=60s"`
	SessionLeakEnabled     bool          `env:"SESSION_LEAK_DETECTION_ENABLED,default=true"`
	SessionAcquireTimeout  time.Duration `env:"SESSION_ACQUIRE_TIMEOUT,default=5s"`

	BreakerFailureThreshold     int           `env:"BREAKER_FAILURE_THRESHOLD,default=5"`
	BreakerFailureRateThreshold float64       `env:"BREAKER_FAILURE_RATE_THRESHOLD,default=0.5"`
	BreakerMinCallsForRate      int           `env:"BREAKER_MIN_CALLS_FOR_RATE,default=10"`
	BreakerSuccessThreshold     int           `env:"BREAKER_SUCCESS_THRESHOLD,default=2"`
	BreakerCallTimeout          time.Duration `env:"BREAKER_CALL_TIMEOUT,default=5s"`
	BreakerRecoveryTimeout      time.Duration `env:"BREAKER_RECOVERY_TIMEOUT,default=30s"`
	BreakerHalfOpenMaxInFlight  int           `env:"BREAKER_HALF_OPEN_MAX_IN_FLIGHT,default=3"`

	TokenCacheTTL time.Duration `env:"TOKEN_CACHE_TTL,default=5m"`

	IdentifierPrefixAllowlist string `env:"IDENTIFIER_PREFIX_ALLOWLIST,default=thread"`
}

// Config is the fully decoded, ready-to-wire configuration.
type Config struct {
	Session                   sessionfactory.Config
	Breaker                   breaker.Config
	TokenCacheTTL             time.Duration
	IdentifierPrefixAllowlist []string
	Environment               Environment
}

// LoadDotEnv optionally loads a .env file before FromEnv reads the
// process environment. A missing file is not an error — this mirrors
// the teacher's style of treating .env as a convenience for local
// development, never a requirement in deployed environments.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// FromEnv decodes Config from the process environment via envdecode.
func FromEnv() (*Config, error) {
	var fields envFields
	if err := envdecode.StrictDecode(&fields); err != nil {
		return nil, err
	}

	cfg := &Config{
		Session: sessionfactory.Config{
			MaxSessionLifetime:    fields.SessionMaxLifetime,
			LeakDetectionInterval: fields.SessionLeakInterval,
			LeakDetectionEnabled:  fields.SessionLeakEnabled,
			AcquireTimeout:        fields.SessionAcquireTimeout,
		},
		Breaker: breaker.Config{
			FailureThreshold:     fields.BreakerFailureThreshold,
			FailureRateThreshold: fields.BreakerFailureRateThreshold,
			MinCallsForRate:      fields.BreakerMinCallsForRate,
			SuccessThreshold:     fields.BreakerSuccessThreshold,
			CallTimeout:          fields.BreakerCallTimeout,
			RecoveryTimeout:      fields.BreakerRecoveryTimeout,
			HalfOpenMaxInFlight:  fields.BreakerHalfOpenMaxInFlight,
		},
		TokenCacheTTL:             fields.TokenCacheTTL,
		IdentifierPrefixAllowlist: SplitAndTrimCSV(fields.IdentifierPrefixAllowlist),
		Environment:               CurrentEnvironment(),
	}

	// A non-production environment with no explicit breaker overrides
	// gets the relaxed demo preset instead of the production defaults,
	// so a local `go run ./cmd/sessiondemo` doesn't trip on the first
	// flaky call.
	if cfg.Environment != Production {
		overridden := false
		for _, key := range []string{
			"BREAKER_FAILURE_THRESHOLD", "BREAKER_FAILURE_RATE_THRESHOLD", "BREAKER_MIN_CALLS_FOR_RATE",
			"BREAKER_SUCCESS_THRESHOLD", "BREAKER_CALL_TIMEOUT", "BREAKER_RECOVERY_TIMEOUT",
			"BREAKER_HALF_OPEN_MAX_IN_FLIGHT",
		} {
			if os.Getenv(key) != "" {
				overridden = true
			}
		}
		if !overridden {
			cfg.Breaker = breaker.DemoConfig()
		}
	}

	return cfg, nil
}

// GetEnvInt retrieves an integer environment variable with a default,
// kept for ad-hoc lookups envdecode's struct tags don't cover.
func GetEnvInt(key string, defaultValue int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// ParseDurationOrDefault parses a duration string or returns the default.
func ParseDurationOrDefault(raw string, defaultDuration time.Duration) time.Duration {
	if raw == "" {
		return defaultDuration
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		return parsed
	}
	return defaultDuration
}

// SplitAndTrimCSV splits a CSV string and trims each part, filtering
// out empty values.
func SplitAndTrimCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
