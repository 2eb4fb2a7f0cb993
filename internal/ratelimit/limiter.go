// Package ratelimit implements per-service token buckets with a non-blocking
// check-and-reserve contract. Callers receive the wait they would need and
// decide how to suspend; the limiter itself never sleeps.
package ratelimit

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"sage/internal/services"
)

// Unserviceable is reported as the wait when a bucket can never satisfy a
// request (capacity 0, or a drained bucket that does not refill).
const Unserviceable = time.Duration(math.MaxInt64)

// Clock returns the current time. Tests inject synthetic clocks; production
// uses time.Now, whose monotonic reading keeps waits immune to wall-clock jumps.
type Clock func() time.Time

// Budget configures one bucket.
type Budget struct {
	Capacity        int
	RefillPerSecond float64
}

// Bucket is a single service's token bucket. The mutex serializes the
// reserve-then-cancel sequence so a reported wait never consumes tokens.
type Bucket struct {
	mu       sync.Mutex
	name     string
	budget   Budget
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newBucket(name string, budget Budget) *Bucket {
	return &Bucket{
		name:    name,
		budget:  budget,
		limiter: rate.NewLimiter(rate.Limit(budget.RefillPerSecond), budget.Capacity),
	}
}

// reserve takes cost tokens at now. It returns the granted reservation, or
// the wait until the tokens would exist.
func (b *Bucket) reserve(now time.Time, cost int) (*rate.Reservation, time.Duration, error) {
	if cost <= 0 {
		return nil, 0, nil
	}
	if b.budget.Capacity == 0 {
		return nil, Unserviceable, nil
	}
	if cost > b.budget.Capacity {
		return nil, 0, fmt.Errorf("%w: %s: cost %d exceeds capacity %d", services.ErrConfiguration, b.name, cost, b.budget.Capacity)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if now.Before(b.lastSeen) {
		now = b.lastSeen
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, cost)
	if !r.OK() {
		return nil, Unserviceable, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return nil, delay, nil
	}
	return r, 0, nil
}

func (b *Bucket) release(r *rate.Reservation, now time.Time) {
	if r == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.Before(b.lastSeen) {
		now = b.lastSeen
	}
	r.CancelAt(now)
}

func (b *Bucket) tokens(now time.Time) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.budget.RefillPerSecond == 0 {
		// rate.Limiter tracks a non-refilling bucket through its burst.
		return float64(b.limiter.Burst())
	}
	if now.Before(b.lastSeen) {
		now = b.lastSeen
	}
	tokens := b.limiter.TokensAt(now)
	return math.Max(0, math.Min(tokens, float64(b.budget.Capacity)))
}

// Limiter owns one bucket per named service. Its bucket set is fixed at
// construction; services without a bucket are unlimited.
type Limiter struct {
	clock   Clock
	buckets map[string]*Bucket
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(l *Limiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// New builds a limiter from per-service budgets.
func New(budgets map[string]Budget, opts ...Option) *Limiter {
	l := &Limiter{clock: time.Now, buckets: make(map[string]*Bucket, len(budgets))}
	for _, opt := range opts {
		opt(l)
	}
	for name, budget := range budgets {
		key := normalizeName(name)
		if key == "" {
			continue
		}
		l.buckets[key] = newBucket(key, budget)
	}
	return l
}

// Acquire consumes cost tokens from service when available and returns zero.
// Otherwise it returns the wait until enough tokens will exist and consumes
// nothing. Unserviceable is returned when no amount of waiting helps.
func (l *Limiter) Acquire(service string, cost int) (time.Duration, error) {
	bucket, ok := l.bucket(service)
	if !ok {
		return 0, nil
	}
	_, wait, err := bucket.reserve(l.clock(), cost)
	return wait, err
}

// AcquireAll reserves cost tokens on every named service. If any bucket
// reports a wait, reservations already taken are released and the longest
// wait is returned.
func (l *Limiter) AcquireAll(serviceNames []string, cost int) (time.Duration, error) {
	now := l.clock()
	type held struct {
		bucket *Bucket
		res    *rate.Reservation
	}
	granted := make([]held, 0, len(serviceNames))
	rollback := func() {
		for i := len(granted) - 1; i >= 0; i-- {
			granted[i].bucket.release(granted[i].res, now)
		}
	}

	seen := make(map[string]struct{}, len(serviceNames))
	var longest time.Duration
	for _, name := range serviceNames {
		key := normalizeName(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		bucket, ok := l.buckets[key]
		if !ok {
			continue
		}
		res, wait, err := bucket.reserve(now, cost)
		if err != nil {
			rollback()
			return 0, err
		}
		if wait > 0 {
			if wait > longest {
				longest = wait
			}
			continue
		}
		granted = append(granted, held{bucket: bucket, res: res})
	}
	if longest > 0 {
		rollback()
		return longest, nil
	}
	return 0, nil
}

// Tokens reports the current token count for service.
func (l *Limiter) Tokens(service string) (float64, bool) {
	bucket, ok := l.bucket(service)
	if !ok {
		return 0, false
	}
	return bucket.tokens(l.clock()), true
}

// Budget returns the configured budget for service.
func (l *Limiter) Budget(service string) (Budget, bool) {
	bucket, ok := l.bucket(service)
	if !ok {
		return Budget{}, false
	}
	return bucket.budget, true
}

// Services lists the configured service names in sorted order.
func (l *Limiter) Services() []string {
	names := make([]string, 0, len(l.buckets))
	for name := range l.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *Limiter) bucket(service string) (*Bucket, bool) {
	if l == nil {
		return nil, false
	}
	bucket, ok := l.buckets[normalizeName(service)]
	return bucket, ok
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
