package client

import (
	"math/rand"
	"testing"
	"time"
)

func TestNextBackoffDelay(t *testing.T) {
	cfg := BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     time.Second,
	}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{10, time.Second},
	}
	for _, tt := range tests {
		if got := NextBackoffDelay(cfg, tt.attempt, nil); got != tt.want {
			t.Errorf("NextBackoffDelay(attempt=%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestNextBackoffDelay_MultiplierBelowOne(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: 50 * time.Millisecond, Multiplier: 0.5}
	if got := NextBackoffDelay(cfg, 4, nil); got != 50*time.Millisecond {
		t.Errorf("got %s, want constant 50ms", got)
	}
}

func TestNextBackoffDelay_ZeroInitial(t *testing.T) {
	cfg := BackoffConfig{Multiplier: 2}
	if got := NextBackoffDelay(cfg, 3, nil); got != 0 {
		t.Errorf("got %s, want 0", got)
	}
}

func TestNextBackoffDelay_Jitter(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 2, Jitter: true}

	// Without a source the jitter factor is fixed at 0.5.
	if got := NextBackoffDelay(cfg, 2, nil); got != 100*time.Millisecond {
		t.Errorf("nil rng delay = %s, want 100ms", got)
	}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		got := NextBackoffDelay(cfg, 2, rng)
		if got < 100*time.Millisecond || got >= 300*time.Millisecond {
			t.Fatalf("jittered delay %s outside [100ms, 300ms)", got)
		}
	}
}
