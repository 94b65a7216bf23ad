package scconfig

import (
	"os"
	"testing"
)

func clearSessionCoreEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"SESSION_CORE_ENV", "ENVIRONMENT",
		"SESSION_MAX_LIFETIME", "SESSION_LEAK_DETECTION_INTERVAL", "SESSION_LEAK_DETECTION_ENABLED",
		"SESSION_ACQUIRE_TIMEOUT", "BREAKER_FAILURE_THRESHOLD", "BREAKER_FAILURE_RATE_THRESHOLD",
		"BREAKER_MIN_CALLS_FOR_RATE", "BREAKER_SUCCESS_THRESHOLD", "BREAKER_CALL_TIMEOUT",
		"BREAKER_RECOVERY_TIMEOUT", "BREAKER_HALF_OPEN_MAX_IN_FLIGHT", "TOKEN_CACHE_TTL",
		"IDENTIFIER_PREFIX_ALLOWLIST",
	}
	for _, k := range keys {
		prev, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, prev)
			}
		})
	}
}

func TestFromEnvDefaultsToDemoBreakerOutsideProduction(t *testing.T) {
	clearSessionCoreEnv(t)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Environment != Development {
		t.Fatalf("expected Development by default, got %s", cfg.Environment)
	}
	if cfg.Breaker.FailureThreshold != 20 {
		t.Fatalf("expected relaxed demo preset (failure_threshold=20) outside production, got %d", cfg.Breaker.FailureThreshold)
	}
}

func TestFromEnvHonorsExplicitBreakerOverride(t *testing.T) {
	clearSessionCoreEnv(t)
	os.Setenv("BREAKER_FAILURE_THRESHOLD", "7")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Breaker.FailureThreshold != 7 {
		t.Fatalf("expected explicit override to stick, got %d", cfg.Breaker.FailureThreshold)
	}
}

func TestFromEnvProductionKeepsStrictDefaults(t *testing.T) {
	clearSessionCoreEnv(t)
	os.Setenv("SESSION_CORE_ENV", "production")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Environment != Production {
		t.Fatalf("expected Production, got %s", cfg.Environment)
	}
	if cfg.Breaker.FailureThreshold != 5 {
		t.Fatalf("expected the production default (5), got %d", cfg.Breaker.FailureThreshold)
	}
}

func TestSplitAndTrimCSVFiltersEmpty(t *testing.T) {
	got := SplitAndTrimCSV(" thread, , run ,")
	want := []string{"thread", "run"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestLoadDotEnvMissingFileIsNotAnError(t *testing.T) {
	if err := LoadDotEnv("/nonexistent/path/.env.test"); err != nil {
		t.Fatalf("expected no error for a missing .env file, got %v", err)
	}
}
