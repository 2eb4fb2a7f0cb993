package ratelimit_test

import (
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"sage/internal/ratelimit"
	"sage/internal/services"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestAcquireConsumesThenReportsWait(t *testing.T) {
	clock := newFakeClock()
	limiter := ratelimit.New(map[string]ratelimit.Budget{
		"youtube": {Capacity: 2, RefillPerSecond: 1},
	}, ratelimit.WithClock(clock.Now))

	for i := 0; i < 2; i++ {
		wait, err := limiter.Acquire("youtube", 1)
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		if wait != 0 {
			t.Fatalf("acquire %d: expected immediate grant, got wait %s", i, wait)
		}
	}

	wait, err := limiter.Acquire("youtube", 1)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if wait != time.Second {
		t.Fatalf("expected 1s wait, got %s", wait)
	}
	tokens, ok := limiter.Tokens("youtube")
	if !ok {
		t.Fatal("expected youtube bucket")
	}
	if tokens > 1e-9 {
		t.Fatalf("reported wait must not consume tokens, have %f", tokens)
	}

	clock.Advance(time.Second)
	wait, err = limiter.Acquire("youtube", 1)
	if err != nil || wait != 0 {
		t.Fatalf("expected grant after refill, got wait=%s err=%v", wait, err)
	}
}

func TestAcquireUnknownServiceIsUnlimited(t *testing.T) {
	limiter := ratelimit.New(nil)
	for i := 0; i < 100; i++ {
		wait, err := limiter.Acquire("llm", 5)
		if err != nil || wait != 0 {
			t.Fatalf("expected unlimited, got wait=%s err=%v", wait, err)
		}
	}
	if _, ok := limiter.Tokens("llm"); ok {
		t.Fatal("unknown service should not report tokens")
	}
}

func TestAcquireZeroCapacityIsUnserviceable(t *testing.T) {
	limiter := ratelimit.New(map[string]ratelimit.Budget{
		"youtube": {Capacity: 0, RefillPerSecond: 1},
	})
	wait, err := limiter.Acquire("youtube", 1)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if wait != ratelimit.Unserviceable {
		t.Fatalf("expected unserviceable wait, got %s", wait)
	}
}

func TestAcquireCostAboveCapacityIsConfigurationError(t *testing.T) {
	limiter := ratelimit.New(map[string]ratelimit.Budget{
		"llm": {Capacity: 2, RefillPerSecond: 1},
	})
	_, err := limiter.Acquire("llm", 3)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestAcquireNonRefillingBucketDrains(t *testing.T) {
	limiter := ratelimit.New(map[string]ratelimit.Budget{
		"embeddings": {Capacity: 1, RefillPerSecond: 0},
	})
	if wait, err := limiter.Acquire("embeddings", 1); err != nil || wait != 0 {
		t.Fatalf("first acquire: wait=%s err=%v", wait, err)
	}
	wait, err := limiter.Acquire("embeddings", 1)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if wait != ratelimit.Unserviceable {
		t.Fatalf("expected unserviceable once drained, got %s", wait)
	}
}

func TestAcquireAllRollsBackOnWait(t *testing.T) {
	clock := newFakeClock()
	limiter := ratelimit.New(map[string]ratelimit.Budget{
		"youtube": {Capacity: 3, RefillPerSecond: 1},
		"llm":     {Capacity: 1, RefillPerSecond: 0.5},
	}, ratelimit.WithClock(clock.Now))

	if wait, _ := limiter.Acquire("llm", 1); wait != 0 {
		t.Fatalf("priming acquire should succeed, got %s", wait)
	}

	wait, err := limiter.AcquireAll([]string{"youtube", "llm"}, 1)
	if err != nil {
		t.Fatalf("acquire all: %v", err)
	}
	if wait != 2*time.Second {
		t.Fatalf("expected longest wait 2s, got %s", wait)
	}
	tokens, _ := limiter.Tokens("youtube")
	if tokens < 3-1e-9 {
		t.Fatalf("youtube reservation should have been rolled back, have %f", tokens)
	}

	clock.Advance(2 * time.Second)
	wait, err = limiter.AcquireAll([]string{"youtube", "llm", "youtube"}, 1)
	if err != nil || wait != 0 {
		t.Fatalf("expected grant, got wait=%s err=%v", wait, err)
	}
	tokens, _ = limiter.Tokens("youtube")
	if tokens < 2-1e-9 || tokens > 2+1e-9 {
		t.Fatalf("duplicate service names should consume once, have %f", tokens)
	}
}

func TestTokensStayWithinCapacity(t *testing.T) {
	clock := newFakeClock()
	const capacity = 5
	limiter := ratelimit.New(map[string]ratelimit.Budget{
		"youtube": {Capacity: capacity, RefillPerSecond: 2},
	}, ratelimit.WithClock(clock.Now))

	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 2000; i++ {
		clock.Advance(time.Duration(rng.IntN(700)) * time.Millisecond)
		cost := 1 + rng.IntN(capacity)
		if _, err := limiter.Acquire("youtube", cost); err != nil {
			t.Fatalf("acquire: %v", err)
		}
		tokens, _ := limiter.Tokens("youtube")
		if tokens < -1e-9 || tokens > capacity+1e-9 {
			t.Fatalf("step %d: tokens %f outside [0, %d]", i, tokens, capacity)
		}
	}
}

func TestAcquireConcurrentNeverOvergrants(t *testing.T) {
	clock := newFakeClock()
	limiter := ratelimit.New(map[string]ratelimit.Budget{
		"llm": {Capacity: 10, RefillPerSecond: 0.001},
	}, ratelimit.WithClock(clock.Now))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wait, err := limiter.Acquire("llm", 1)
			if err == nil && wait == 0 {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if granted != 10 {
		t.Fatalf("expected exactly 10 grants, got %d", granted)
	}
}

func TestServicesSortedAndNormalized(t *testing.T) {
	limiter := ratelimit.New(map[string]ratelimit.Budget{
		" YouTube ": {Capacity: 1, RefillPerSecond: 1},
		"llm":       {Capacity: 1, RefillPerSecond: 1},
	})
	got := limiter.Services()
	if len(got) != 2 || got[0] != "llm" || got[1] != "youtube" {
		t.Fatalf("unexpected services %v", got)
	}
	if budget, ok := limiter.Budget("YOUTUBE"); !ok || budget.Capacity != 1 {
		t.Fatalf("expected case-insensitive lookup, got %+v ok=%v", budget, ok)
	}
}
