package breaker

import "time"

// Config tunes one circuit breaker's thresholds and timing. All fields
// are tunable; the values returned by the preset constructors are
// typical, not sacred (spec §4.6).
type Config struct {
	FailureThreshold     int
	FailureRateThreshold float64
	MinCallsForRate      int
	SuccessThreshold     int
	CallTimeout          time.Duration
	RecoveryTimeout      time.Duration
	HalfOpenMaxInFlight  int
}

// DefaultConfig mirrors the source's production defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:     5,
		FailureRateThreshold: 0.5,
		MinCallsForRate:      10,
		SuccessThreshold:     2,
		CallTimeout:          5 * time.Second,
		RecoveryTimeout:      30 * time.Second,
		HalfOpenMaxInFlight:  3,
	}
}

// StrictConfig opens sooner and recovers more slowly, for dependencies
// whose failure should be assumed costly.
func StrictConfig() Config {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 3
	cfg.FailureRateThreshold = 0.3
	cfg.RecoveryTimeout = 60 * time.Second
	cfg.HalfOpenMaxInFlight = 1
	return cfg
}

// LenientConfig tolerates more failures before opening and recovers faster.
func LenientConfig() Config {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 10
	cfg.FailureRateThreshold = 0.7
	cfg.RecoveryTimeout = 15 * time.Second
	cfg.HalfOpenMaxInFlight = 5
	return cfg
}

// DemoConfig relaxes every threshold for local/demo environments, where
// a slow auth dependency should not be mistaken for a production
// incident. Never select this in production (see scconfig.Environment).
func DemoConfig() Config {
	return Config{
		FailureThreshold:     20,
		FailureRateThreshold: 0.9,
		MinCallsForRate:      50,
		SuccessThreshold:     1,
		CallTimeout:          15 * time.Second,
		RecoveryTimeout:      5 * time.Second,
		HalfOpenMaxInFlight:  10,
	}
}
