package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"sage/internal/acquisition"
	"sage/internal/config"
	"sage/internal/ingest"
	"sage/internal/logging"
	"sage/internal/memory"
	"sage/internal/progress"
	"sage/internal/queue"
	"sage/internal/ratelimit"
	"sage/internal/retry"
	"sage/internal/search"
	"sage/internal/services"
	"sage/internal/services/llm"
	"sage/internal/services/whisperx"
	"sage/internal/store"
	"sage/internal/workdir"
	"sage/internal/youtube"
)

const (
	reporterCapacity = 1024
	progressLogStep  = 25
	staleWorkAge     = 24 * time.Hour
)

// ErrLocked is returned by Start when another process holds the ingest lock.
var ErrLocked = errors.New("another sage ingest is already running")

// Option overrides a collaborator the engine would otherwise build from
// configuration.
type Option func(*overrides)

type overrides struct {
	acquisition *acquisition.Dependencies
	summarizer  ingest.Summarizer
	embedder    memory.Embedder
	clock       ratelimit.Clock
}

// WithAcquisition replaces the YouTube and WhisperX collaborators.
func WithAcquisition(deps acquisition.Dependencies) Option {
	return func(o *overrides) {
		o.acquisition = &deps
	}
}

// WithSummarizer enables summarization through s regardless of LLM settings.
func WithSummarizer(s ingest.Summarizer) Option {
	return func(o *overrides) {
		o.summarizer = s
	}
}

// WithEmbedder enables semantic memory through e regardless of embedding
// settings.
func WithEmbedder(e memory.Embedder) Option {
	return func(o *overrides) {
		o.embedder = e
	}
}

// WithClock sets the rate limiter's time source.
func WithClock(clock ratelimit.Clock) Option {
	return func(o *overrides) {
		o.clock = clock
	}
}

// Engine composes storage, the processing queue, and hybrid search behind a
// single lifecycle.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	store    *store.Store
	memory   *memory.Memory
	limiter  *ratelimit.Limiter
	reporter *progress.Reporter
	queue    *queue.Queue
	merger   *search.Merger

	lock *flock.Flock

	mu      sync.Mutex
	running bool
	closed  bool
}

// New opens the stores and wires every collaborator. It does not start
// processing; searches and lookups work without Start.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, services.Wrap(services.KindConfiguration, "", "engine", "configuration is required", services.ErrConfiguration)
	}
	var ov overrides
	for _, opt := range opts {
		opt(&ov)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.KindStorageFailure, "", "engine", "create directories", err)
	}

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "engine"),
		store:  st,
		lock:   flock.New(cfg.LockPath()),
	}

	embedder := ov.embedder
	if embedder == nil && cfg.SemanticEnabled() {
		embedder = memory.NewClient(cfg.Embeddings)
	}
	if embedder != nil {
		mem, err := memory.Open(cfg.MemoryPath(), embedder, logger)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		e.memory = mem
	}

	var limiterOpts []ratelimit.Option
	if ov.clock != nil {
		limiterOpts = append(limiterOpts, ratelimit.WithClock(ov.clock))
	}
	e.limiter = ratelimit.New(budgets(cfg.RateLimits), limiterOpts...)

	e.reporter = progress.NewReporter(reporterCapacity)
	e.reporter.AddSink(progress.NewLogSink(logger, progressLogStep))

	acqDeps := defaultAcquisition(cfg, logger)
	if ov.acquisition != nil {
		acqDeps = *ov.acquisition
	}
	policy := retryPolicy(cfg)
	machine := acquisition.New(acqDeps, acquisition.Options{
		MinWordsPerMinute: cfg.Transcription.MinWordsPerMinute,
		RateService:       config.ServiceYouTube,
		Logger:            logger,
	})

	deps := ingest.Dependencies{
		Acquirer: machine,
		Store:    st,
	}
	switch {
	case ov.summarizer != nil:
		deps.Summarizer = ov.summarizer
	case cfg.SummarizationEnabled():
		deps.Summarizer = llm.NewClient(llm.Config{
			APIKey:         cfg.LLM.APIKey,
			BaseURL:        cfg.LLM.BaseURL,
			Model:          cfg.LLM.Model,
			Referer:        cfg.LLM.Referer,
			Title:          cfg.LLM.Title,
			TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		})
	}
	if e.memory != nil {
		deps.Memory = e.memory
	}
	exec := ingest.New(deps, ingest.Options{
		WorkDir:         cfg.Paths.WorkDir,
		MaxSummaryWords: cfg.LLM.MaxSummaryWords,
		LLMService:      config.ServiceLLM,
		MemoryService:   config.ServiceEmbeddings,
		Logger:          logger,
	})

	e.queue = queue.New(exec, e.limiter, e.reporter, queue.Config{
		MaxWorkers:   cfg.Queue.MaxWorkers,
		Retry:        policy,
		StallTimeout: cfg.StallTimeout(),
		Weights:      cfg.Progress,
		Canonicalize: acquisition.Canonicalize,
		Logger:       logger,
	})

	var semantic search.Backend
	if e.memory != nil {
		semantic = search.SemanticBackend(e.memory)
	}
	e.merger = search.NewMerger(search.KeywordBackend(st), semantic, search.Options{
		KeywordWeight:   cfg.Search.KeywordWeight,
		SemanticWeight:  cfg.Search.SemanticWeight,
		DefaultLimit:    cfg.Search.DefaultLimit,
		CandidateFactor: cfg.Search.CandidateFactor,
		Logger:          logger,
	})

	e.logger.Debug("engine initialized",
		logging.String("database", st.Path()),
		logging.Bool("semantic", e.memory != nil),
		logging.Bool("summaries", deps.Summarizer != nil),
		logging.Int("workers", cfg.Queue.MaxWorkers),
	)
	return e, nil
}

func defaultAcquisition(cfg *config.Config, logger *slog.Logger) acquisition.Dependencies {
	yt := youtube.New(cfg.YouTube, logger)
	transcriber := whisperx.NewService(whisperx.Config{
		Model:       cfg.Transcription.WhisperXModel,
		CUDAEnabled: cfg.Transcription.CUDAEnabled,
		VADMethod:   cfg.Transcription.VADMethod,
		HFToken:     cfg.Transcription.HuggingFaceToken,
		Language:    cfg.Transcription.Language,
	}, whisperx.FFmpegCommand, logger)
	return acquisition.Dependencies{
		Source:      yt,
		Metadata:    yt,
		Fetcher:     yt,
		Transcriber: transcriber,
	}
}

func budgets(limits map[string]config.RateLimit) map[string]ratelimit.Budget {
	out := make(map[string]ratelimit.Budget, len(limits))
	for name, limit := range limits {
		out[name] = ratelimit.Budget{Capacity: limit.Capacity, RefillPerSecond: limit.RefillPerSecond}
	}
	return out
}

func retryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts:  cfg.Queue.MaxAttempts,
		BaseDelay:    cfg.RetryBaseDelay(),
		MaxDelay:     cfg.RetryMaxDelay(),
		JitterFactor: cfg.Queue.RetryJitter,
	}
}

// Start acquires the ingest lock and begins processing queued items.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("engine closed")
	}
	if e.running {
		return nil
	}
	ok, err := e.lock.TryLock()
	if err != nil {
		return services.Wrap(services.KindStorageFailure, "", "engine", "acquire ingest lock", err)
	}
	if !ok {
		return services.Wrap(services.KindConfiguration, "", "engine", e.lock.Path(), ErrLocked)
	}
	// Holding the lock means no other process owns a work directory.
	if cleaned := workdir.CleanStale(ctx, e.cfg.Paths.WorkDir, staleWorkAge, e.logger); len(cleaned.Errors) > 0 {
		e.logger.Debug("stale work directories left in place", logging.Int("errors", len(cleaned.Errors)))
	}
	if err := e.queue.Start(ctx); err != nil {
		_ = e.lock.Unlock()
		return err
	}
	e.running = true
	e.logger.Info("ingest engine started",
		logging.String(logging.FieldEventType, "engine_started"),
		logging.String("lock", e.lock.Path()),
	)
	return nil
}

// Stop halts processing and releases the ingest lock.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if !e.running {
		return
	}
	e.queue.Stop()
	if err := e.lock.Unlock(); err != nil {
		logging.WarnWithContext(e.logger, "failed to release ingest lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+e.lock.Path()+" if no sage process is running"),
		)
	}
	e.running = false
	e.logger.Info("ingest engine stopped", logging.String(logging.FieldEventType, "engine_stopped"))
}

// Close stops processing and releases the stores.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.stopLocked()
	e.closed = true
	e.reporter.Close()
	var errs []error
	if e.memory != nil {
		errs = append(errs, e.memory.Close())
	}
	errs = append(errs, e.store.Close())
	return errors.Join(errs...)
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// SemanticEnabled reports whether semantic memory is wired.
func (e *Engine) SemanticEnabled() bool {
	return e.memory != nil
}

// Enqueue submits source for ingestion.
func (e *Engine) Enqueue(source string, opts queue.Options) (int64, error) {
	return e.queue.Enqueue(source, opts)
}

// RetryStorage requeues an item that failed while persisting.
func (e *Engine) RetryStorage(id int64) (int64, error) {
	return e.queue.RetryStorage(id)
}

// Status returns a snapshot of one item.
func (e *Engine) Status(id int64) (queue.Item, bool) {
	return e.queue.Status(id)
}

// List returns snapshots of every item the queue holds.
func (e *Engine) List() []queue.Item {
	return e.queue.List()
}

// Stats summarizes queue occupancy.
func (e *Engine) Stats() queue.Stats {
	return e.queue.Stats()
}

// Cancel requests cancellation of a live item.
func (e *Engine) Cancel(id int64) error {
	return e.queue.Cancel(id)
}

// Drain removes and returns finished items.
func (e *Engine) Drain() []queue.Item {
	return e.queue.Drain()
}

// Subscribe observes progress for itemID, or every item when itemID is 0.
func (e *Engine) Subscribe(itemID int64, buffer int) *progress.Subscription {
	if buffer <= 0 {
		buffer = e.cfg.Queue.ProgressBuffer
	}
	return e.queue.Subscribe(itemID, buffer)
}

// Wait blocks until item id is terminal.
func (e *Engine) Wait(ctx context.Context, id int64) (queue.Item, error) {
	return e.queue.Wait(ctx, id)
}

// WaitIdle blocks until no item is pending or running.
func (e *Engine) WaitIdle(ctx context.Context) error {
	return e.queue.WaitIdle(ctx)
}

// Search runs a hybrid keyword and semantic query.
func (e *Engine) Search(ctx context.Context, q search.Query) ([]search.Hit, error) {
	return e.merger.Search(ctx, q)
}

// Find resolves a stored ingestion by numeric ID or source ID.
func (e *Engine) Find(ctx context.Context, ref string) (store.Entry, error) {
	return e.store.Find(ctx, ref)
}

// Recent lists the most recently ingested videos.
func (e *Engine) Recent(ctx context.Context, limit int) ([]store.Video, error) {
	return e.store.Recent(ctx, limit)
}

// Counts reports stored totals. Memories is -1 when semantic memory is off.
func (e *Engine) Counts(ctx context.Context) (store.Counts, int, error) {
	counts, err := e.store.Counts(ctx)
	if err != nil {
		return store.Counts{}, 0, err
	}
	memories := -1
	if e.memory != nil {
		memories, err = e.memory.Count(ctx)
		if err != nil {
			return counts, 0, err
		}
	}
	return counts, memories, nil
}
