package resilience

import (
	"time"
)

// FromAttemptsDelay builds a fixed-delay retry config from configuration
// values, falling back to 3 attempts and a 2s delay.
func FromAttemptsDelay(maxAttempts int, delay time.Duration) RetryConfig {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return FixedDelay(maxAttempts, delay)
}

// FromCircuitConfig converts config values to a CircuitBreakerConfig.
func FromCircuitConfig(failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}
