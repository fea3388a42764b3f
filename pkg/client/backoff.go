package client

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig controls the delay between reconnect attempts.
type BackoffConfig struct {
	// InitialDelay is the delay before the first attempt.
	// Default: 500 milliseconds.
	InitialDelay time.Duration

	// Multiplier scales the delay after every failed attempt. Values below
	// 1 are treated as 1.
	// Default: 2.
	Multiplier float64

	// MaxDelay caps the delay. Zero means no cap.
	// Default: 30 seconds.
	MaxDelay time.Duration

	// Jitter scales each delay by a random factor in [0.5, 1.5).
	// Default: true.
	Jitter bool

	// MaxAttempts stops reconnecting after this many failures. Zero retries
	// until Close.
	MaxAttempts int
}

// DefaultBackoffConfig returns a BackoffConfig with sensible defaults.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 500 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     30 * time.Second,
		Jitter:       true,
	}
}

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}
