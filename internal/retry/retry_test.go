package retry_test

import (
	"testing"
	"time"

	"sage/internal/retry"
	"sage/internal/services"
)

func TestShouldRetry(t *testing.T) {
	policy := retry.Policy{MaxAttempts: 3}
	tests := []struct {
		name    string
		attempt int
		kind    services.Kind
		want    bool
	}{
		{"network first attempt", 1, services.KindNetwork, true},
		{"rate limited second attempt", 2, services.KindRateLimited, true},
		{"service unavailable at cap", 3, services.KindServiceUnavailable, false},
		{"invalid input", 1, services.KindInvalidInput, false},
		{"not accessible", 1, services.KindNotAccessible, false},
		{"no speech", 1, services.KindNoSpeech, false},
		{"cancelled", 1, services.KindCancelled, false},
		{"storage", 1, services.KindStorageFailure, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.ShouldRetry(tt.attempt, tt.kind); got != tt.want {
				t.Errorf("ShouldRetry(%d, %s) = %v, want %v", tt.attempt, tt.kind, got, tt.want)
			}
		})
	}
}

func TestShouldRetryDefaultsToThreeAttempts(t *testing.T) {
	var policy retry.Policy
	if !policy.ShouldRetry(2, services.KindNetwork) {
		t.Fatal("attempt 2 should retry under the default cap")
	}
	if policy.ShouldRetry(3, services.KindNetwork) {
		t.Fatal("attempt 3 should be the last under the default cap")
	}
}

func TestDelayForGrowsExponentiallyWithoutJitter(t *testing.T) {
	policy := retry.Policy{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  time.Second,
		Rand:      func() float64 { return 0.5 },
	}
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, expected := range want {
		if got := policy.DelayFor(i + 1); got != expected {
			t.Errorf("DelayFor(%d) = %s, want %s", i+1, got, expected)
		}
	}
}

func TestDelayForJitterStaysBounded(t *testing.T) {
	for _, r := range []float64{0, 0.25, 0.75, 0.999} {
		policy := retry.Policy{
			BaseDelay:    time.Second,
			MaxDelay:     4 * time.Second,
			JitterFactor: 0.4,
			Rand:         func() float64 { return r },
		}
		for attempt := 1; attempt <= 8; attempt++ {
			got := policy.DelayFor(attempt)
			if got < 0 || got > 4*time.Second {
				t.Fatalf("DelayFor(%d) with r=%v = %s, outside [0, max]", attempt, r, got)
			}
		}
	}

	policy := retry.Policy{BaseDelay: time.Second, MaxDelay: 10 * time.Second, JitterFactor: 0.4, Rand: func() float64 { return 0 }}
	if got := policy.DelayFor(1); got != 800*time.Millisecond {
		t.Fatalf("expected lower jitter bound 800ms, got %s", got)
	}
}

func TestDelayForHugeAttemptDoesNotOverflow(t *testing.T) {
	policy := retry.Policy{BaseDelay: time.Second, MaxDelay: time.Minute, Rand: func() float64 { return 0.5 }}
	if got := policy.DelayFor(500); got != time.Minute {
		t.Fatalf("expected cap, got %s", got)
	}
}
