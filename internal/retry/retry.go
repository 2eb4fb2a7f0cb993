// Package retry decides whether and when a failed step is attempted again.
// The policy never sleeps; callers schedule the returned delay themselves.
package retry

import (
	"math/rand/v2"
	"time"

	"sage/internal/services"
)

const (
	DefaultMaxAttempts  = 3
	DefaultBaseDelay    = 500 * time.Millisecond
	DefaultMaxDelay     = 30 * time.Second
	DefaultJitterFactor = 0.2
)

// Policy is an exponential backoff schedule with a capped delay and jitter.
type Policy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64

	// Rand returns a value in [0,1). Defaults to math/rand/v2.
	Rand func() float64
}

// Default returns the standard policy.
func Default() Policy {
	return Policy{
		MaxAttempts:  DefaultMaxAttempts,
		BaseDelay:    DefaultBaseDelay,
		MaxDelay:     DefaultMaxDelay,
		JitterFactor: DefaultJitterFactor,
	}
}

// ShouldRetry reports whether a failure of kind on the given attempt
// (1-based) earns another attempt.
func (p Policy) ShouldRetry(attempt int, kind services.Kind) bool {
	p = p.withDefaults()
	if !kind.Retryable() {
		return false
	}
	return attempt < p.MaxAttempts
}

// DelayFor returns the wait before the attempt following attempt (1-based).
// The result always lies within [0, MaxDelay].
func (p Policy) DelayFor(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay << min(attempt-1, 16)
	if delay <= 0 || delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	// delay * (1 +/- jitter/2)
	jitter := float64(delay) * p.JitterFactor * (p.Rand() - 0.5)
	delay = time.Duration(float64(delay) + jitter)
	if delay < 0 {
		delay = 0
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.JitterFactor < 0 {
		p.JitterFactor = 0
	}
	if p.Rand == nil {
		p.Rand = rand.Float64
	}
	return p
}
