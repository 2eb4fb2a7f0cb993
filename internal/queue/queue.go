package queue

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"sage/internal/logging"
	"sage/internal/progress"
	"sage/internal/retry"
	"sage/internal/services"
)

const defaultRecheckInterval = time.Second

// Config tunes scheduling.
type Config struct {
	MaxWorkers int
	Retry      retry.Policy
	// StallTimeout is how long an item may wait on rate budgets before it is
	// reported as stalled. Zero disables stall reporting.
	StallTimeout time.Duration
	// RecheckInterval is how often an item whose budget can never be met is
	// re-examined.
	RecheckInterval time.Duration
	// Weights maps stage names to their share of overall progress.
	Weights map[string]float64
	// Canonicalize maps a submitted source to its dedupe key.
	Canonicalize func(string) string
	Logger       *slog.Logger
}

type entry struct {
	item      Item
	key       string
	priority  int
	seq       uint64
	heapIndex int
	running   bool
	terminal  bool
	frozen    bool
}

// Queue owns every work item and drives them through the executor.
type Queue struct {
	exec     Executor
	limiter  Limiter
	reporter *progress.Reporter
	cfg      Config
	weights  progress.Weights
	stages   []string
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	items      map[int64]*entry
	ready      readyHeap
	waiting    map[int64]*entry
	active     int
	activeKeys map[string]int64
	liveKeys   map[string]int
	finished   []int64
	nextID     int64
	nextSeq    uint64
	changed    chan struct{}

	wake    chan struct{}
	running bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a queue. limiter and reporter may be nil.
func New(exec Executor, limiter Limiter, reporter *progress.Reporter, cfg Config) *Queue {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.RecheckInterval <= 0 {
		cfg.RecheckInterval = defaultRecheckInterval
	}
	if cfg.Canonicalize == nil {
		cfg.Canonicalize = strings.TrimSpace
	}
	stages := exec.Stages()
	return &Queue{
		exec:       exec,
		limiter:    limiter,
		reporter:   reporter,
		cfg:        cfg,
		weights:    progress.NewWeights(stages, cfg.Weights),
		stages:     stages,
		logger:     logging.NewComponentLogger(cfg.Logger, "queue"),
		now:        time.Now,
		items:      make(map[int64]*entry),
		waiting:    make(map[int64]*entry),
		activeKeys: make(map[string]int64),
		liveKeys:   make(map[string]int),
		changed:    make(chan struct{}),
		wake:       make(chan struct{}, 1),
	}
}

// Start launches the dispatcher. Items enqueued before Start wait for it.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return errors.New("queue already running")
	}
	if len(q.stages) == 0 {
		q.mu.Unlock()
		return errors.New("queue stages not configured")
	}
	q.runCtx, q.cancel = context.WithCancel(ctx)
	q.running = true
	q.wg.Add(1)
	q.mu.Unlock()

	go q.dispatch(q.runCtx)
	return nil
}

// Stop cancels in-flight work and waits for the dispatcher and workers.
// Active items observe cancellation through their context.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	cancel := q.cancel
	q.running = false
	q.mu.Unlock()

	cancel()
	q.wg.Wait()
}

// Enqueue submits source and returns the new item ID. A duplicate of a
// non-terminal item returns the existing ID with ErrDuplicate unless
// opts.Force is set.
func (q *Queue) Enqueue(source string, opts Options) (int64, error) {
	key := q.cfg.Canonicalize(source)
	if strings.TrimSpace(key) == "" {
		return 0, services.Wrap(services.KindInvalidInput, "enqueue", "canonicalize", "source identifier is empty", services.ErrValidation)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if !opts.Force && q.liveKeys[key] > 0 {
		existing := q.liveItemForKeyLocked(key)
		return existing, fmt.Errorf("%w: %s (item %d)", ErrDuplicate, key, existing)
	}
	e := q.newEntryLocked(source, key, opts)
	e.item.Stage = q.stages[0]
	q.pushReadyLocked(e)
	q.publishLocked(e, "queued")
	q.logger.Debug("item queued",
		logging.Int64(logging.FieldItemID, e.item.ID),
		logging.String(logging.FieldSourceID, key),
		logging.Int("priority", opts.Priority),
		logging.Bool("force", opts.Force),
	)
	q.signalLocked()
	return e.item.ID, nil
}

// RetryStorage resubmits an item that failed with storage_failure. The new
// item resumes at the failed stage with the original artifacts, so nothing
// upstream is recomputed.
func (q *Queue) RetryStorage(id int64) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	prev, ok := q.items[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownItem, id)
	}
	if prev.item.Status != StatusFailed || prev.item.ErrorKind != services.KindStorageFailure {
		return 0, fmt.Errorf("%w: item %d is %s", ErrNotResumable, id, prev.item.Status)
	}
	if q.liveKeys[prev.key] > 0 {
		existing := q.liveItemForKeyLocked(prev.key)
		return existing, fmt.Errorf("%w: %s (item %d)", ErrDuplicate, prev.key, existing)
	}
	opts := prev.item.Options
	e := q.newEntryLocked(prev.item.Source, prev.key, opts)
	e.item.Stage = prev.item.Stage
	e.item.Artifacts = prev.item.Artifacts
	e.item.Progress = q.weights.Overall(e.item.Stage, 0)
	q.pushReadyLocked(e)
	q.publishLocked(e, fmt.Sprintf("retrying storage for item %d", id))
	q.signalLocked()
	return e.item.ID, nil
}

// Status returns a snapshot of item id.
func (q *Queue) Status(id int64) (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.items[id]
	if !ok {
		return Item{}, false
	}
	return e.snapshot(), true
}

// List returns snapshots of every held item ordered by ID.
func (q *Queue) List() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, 0, len(q.items))
	for _, e := range q.items {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats counts held items by status.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := make(Stats)
	for _, e := range q.items {
		stats[e.item.Status]++
	}
	return stats
}

// Drain removes and returns terminal items in completion order.
func (q *Queue) Drain() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, 0, len(q.finished))
	for _, id := range q.finished {
		e, ok := q.items[id]
		if !ok {
			continue
		}
		out = append(out, e.snapshot())
		delete(q.items, id)
	}
	q.finished = q.finished[:0]
	return out
}

// Cancel requests cancellation of id. Queued, waiting and stalled items fail
// immediately with kind cancelled; an active item fails at its next stage
// boundary.
func (q *Queue) Cancel(id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.items[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownItem, id)
	}
	if e.terminal {
		return fmt.Errorf("%w: %d", ErrTerminal, id)
	}
	if e.running {
		if !e.item.CancelRequested {
			e.item.CancelRequested = true
			q.publishLocked(e, "cancellation requested")
		}
		return nil
	}
	if e.heapIndex >= 0 {
		heap.Remove(&q.ready, e.heapIndex)
	}
	delete(q.waiting, e.item.ID)
	q.failLocked(e, services.Wrap(services.KindCancelled, e.item.Stage, "cancel", "cancelled by caller", context.Canceled))
	q.signalLocked()
	return nil
}

// Subscribe registers a progress observer for itemID, or for every item when
// itemID is 0.
func (q *Queue) Subscribe(itemID int64, buffer int) *progress.Subscription {
	return q.reporter.Subscribe(itemID, buffer)
}

// WaitIdle blocks until no item is pending, active, or waiting. Stalled items
// count as idle because only an operator can unblock them.
func (q *Queue) WaitIdle(ctx context.Context) error {
	for {
		q.mu.Lock()
		idle := q.idleLocked()
		changed := q.changed
		q.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// Wait blocks until item id is terminal and returns its final snapshot.
func (q *Queue) Wait(ctx context.Context, id int64) (Item, error) {
	for {
		q.mu.Lock()
		e, ok := q.items[id]
		if !ok {
			q.mu.Unlock()
			return Item{}, fmt.Errorf("%w: %d", ErrUnknownItem, id)
		}
		snap := e.snapshot()
		changed := q.changed
		q.mu.Unlock()
		if snap.Status.Terminal() {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-changed:
		}
	}
}

func (q *Queue) idleLocked() bool {
	for _, e := range q.items {
		switch e.item.Status {
		case StatusPending, StatusActive, StatusWaiting:
			return false
		}
	}
	return true
}

func (q *Queue) newEntryLocked(source, key string, opts Options) *entry {
	q.nextID++
	q.nextSeq++
	opts.Tags = append([]string(nil), opts.Tags...)
	e := &entry{
		key:       key,
		priority:  opts.Priority,
		seq:       q.nextSeq,
		heapIndex: -1,
		item: Item{
			ID:          q.nextID,
			Source:      source,
			SourceID:    key,
			Priority:    opts.Priority,
			Options:     opts,
			Status:      StatusPending,
			MaxAttempts: q.maxAttempts(),
			SubmittedAt: q.now().UTC(),
		},
	}
	q.items[e.item.ID] = e
	q.liveKeys[key]++
	return e
}

func (q *Queue) liveItemForKeyLocked(key string) int64 {
	var found int64
	for id, e := range q.items {
		if e.key == key && !e.terminal && (found == 0 || id < found) {
			found = id
		}
	}
	return found
}

func (q *Queue) maxAttempts() int {
	if q.cfg.Retry.MaxAttempts > 0 {
		return q.cfg.Retry.MaxAttempts
	}
	return retry.DefaultMaxAttempts
}

// signalLocked wakes the dispatcher and every Wait/WaitIdle caller.
func (q *Queue) signalLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (e *entry) snapshot() Item {
	item := e.item
	item.Options.Tags = append([]string(nil), e.item.Options.Tags...)
	return item
}
