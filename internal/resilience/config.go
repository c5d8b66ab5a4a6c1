package resilience

import "time"

// ExponentialRetry returns a policy of attempts tries whose waits start at
// initial and grow by multiplier up to ceiling. Non-positive arguments keep
// the DefaultRetryConfig value; a negative jitter keeps the default spread.
func ExponentialRetry(attempts int, initial, ceiling time.Duration, multiplier, jitter float64) RetryConfig {
	cfg := DefaultRetryConfig()
	if attempts > 0 {
		cfg.MaxAttempts = attempts
	}
	if initial > 0 {
		cfg.InitialBackoff = initial
	}
	if ceiling > 0 {
		cfg.MaxBackoff = ceiling
	}
	if multiplier > 0 {
		cfg.Multiplier = multiplier
	}
	if jitter >= 0 {
		cfg.JitterFraction = jitter
	}
	return cfg
}

// FixedRetry waits the same cooldown between each of attempts tries.
func FixedRetry(attempts int, cooldown time.Duration) RetryConfig {
	return ExponentialRetry(attempts, cooldown, cooldown, 1, 0)
}

// TripAfter opens a breaker after failures consecutive failures and keeps
// it open for cooloff. Non-positive arguments keep the defaults.
func TripAfter(failures int, cooloff time.Duration) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failures > 0 {
		cfg.FailureThreshold = failures
	}
	if cooloff > 0 {
		cfg.ResetTimeout = cooloff
	}
	return cfg
}
