package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"sage/internal/acquisition"
	"sage/internal/logging"
	"sage/internal/media"
	"sage/internal/memory"
	"sage/internal/queue"
	"sage/internal/services"
	"sage/internal/services/llm"
	"sage/internal/store"
	"sage/internal/textutil"
)

// Stages that follow acquisition.
const (
	StageSummarizing = "summarizing"
	StageStoring     = "storing"
)

const (
	maxKeywordTags      = 10
	memoryExcerptRunes  = 2000
	defaultSummaryWords = llm.DefaultSummaryWords
)

// Acquirer runs one acquisition state at a time.
type Acquirer interface {
	Services(state acquisition.State) []string
	Fallback(state acquisition.State, err error) (acquisition.State, bool)
	Step(ctx context.Context, req acquisition.Request, state acquisition.State, arts media.Artifacts, report acquisition.ReportFunc) acquisition.Transition
}

// Summarizer condenses a transcript.
type Summarizer interface {
	Summarize(ctx context.Context, req llm.SummaryRequest) (media.Summary, error)
}

// Persister writes a finished ingestion to the relational store.
type Persister interface {
	Save(ctx context.Context, rec store.Record) (media.Stored, error)
}

// MemoryWriter adds an ingestion to semantic memory.
type MemoryWriter interface {
	Add(ctx context.Context, text string, meta memory.Metadata) (string, error)
}

// Dependencies are the collaborators an Executor drives. Summarizer and
// Memory may be nil to disable those features.
type Dependencies struct {
	Acquirer   Acquirer
	Summarizer Summarizer
	Store      Persister
	Memory     MemoryWriter
}

// Options tune an Executor.
type Options struct {
	WorkDir         string
	MaxSummaryWords int
	// LLMService and MemoryService name the rate budgets for the
	// summarizing and storing stages.
	LLMService    string
	MemoryService string
	// KeepWorkFiles leaves downloaded media in place after an item finishes.
	KeepWorkFiles bool
	Logger        *slog.Logger
}

// Executor implements queue.Executor for the ingestion pipeline:
// acquisition states, then summarizing, then storing.
type Executor struct {
	deps   Dependencies
	opts   Options
	stages []string
	logger *slog.Logger
	now    func() time.Time
}

// New constructs an Executor.
func New(deps Dependencies, opts Options) *Executor {
	if opts.MaxSummaryWords <= 0 {
		opts.MaxSummaryWords = defaultSummaryWords
	}
	if opts.LLMService == "" {
		opts.LLMService = "llm"
	}
	if opts.MemoryService == "" {
		opts.MemoryService = "embeddings"
	}
	stages := make([]string, 0, len(acquisition.States())+2)
	for _, state := range acquisition.States() {
		stages = append(stages, string(state))
	}
	stages = append(stages, StageSummarizing, StageStoring)
	return &Executor{
		deps:   deps,
		opts:   opts,
		stages: stages,
		logger: logging.NewComponentLogger(opts.Logger, "ingest"),
		now:    time.Now,
	}
}

// Stages lists every stage in pipeline order.
func (e *Executor) Stages() []string {
	return append([]string(nil), e.stages...)
}

// Services names the rate budgets the item's current stage consumes.
func (e *Executor) Services(item queue.Item) []string {
	switch item.Stage {
	case StageSummarizing:
		if e.summarizes(item) {
			return []string{e.opts.LLMService}
		}
		return nil
	case StageStoring:
		if e.deps.Memory != nil && (item.Artifacts.Stored == nil || item.Artifacts.Stored.MemoryID == "") {
			return []string{e.opts.MemoryService}
		}
		return nil
	default:
		if e.deps.Acquirer == nil {
			return nil
		}
		return e.deps.Acquirer.Services(acquisition.State(item.Stage))
	}
}

// Step runs the item's current stage.
func (e *Executor) Step(ctx context.Context, item queue.Item, report queue.ReportFunc) queue.Outcome {
	switch item.Stage {
	case StageSummarizing:
		return e.summarize(ctx, item, report)
	case StageStoring:
		return e.store(ctx, item, report)
	default:
		return e.acquire(ctx, item, report)
	}
}

func (e *Executor) acquire(ctx context.Context, item queue.Item, report queue.ReportFunc) queue.Outcome {
	if e.deps.Acquirer == nil {
		return queue.Outcome{Artifacts: item.Artifacts,
			Err: services.Wrap(services.KindConfiguration, item.Stage, "acquire", "acquisition not configured", services.ErrConfiguration)}
	}
	state := acquisition.State(item.Stage)
	req := acquisition.Request{Source: item.Source, WorkDir: e.itemDir(item)}
	tr := e.deps.Acquirer.Step(ctx, req, state, item.Artifacts, acquisition.ReportFunc(report))
	if tr.Err != nil {
		out := queue.Outcome{Artifacts: tr.Artifacts, Err: tr.Err}
		if next, ok := e.deps.Acquirer.Fallback(state, tr.Err); ok {
			out.Fallback = string(next)
		}
		return out
	}
	switch tr.Next {
	case acquisition.StateSucceeded:
		return queue.Outcome{Next: StageSummarizing, Artifacts: tr.Artifacts}
	case acquisition.StateNoSpeech:
		e.cleanup(item)
		return queue.Outcome{Final: queue.StatusNoSpeech, Artifacts: tr.Artifacts}
	default:
		return queue.Outcome{Next: string(tr.Next), Artifacts: tr.Artifacts}
	}
}

func (e *Executor) summarizes(item queue.Item) bool {
	return e.deps.Summarizer != nil && item.Options.Summarize
}

func (e *Executor) summarize(ctx context.Context, item queue.Item, report queue.ReportFunc) queue.Outcome {
	arts := item.Artifacts
	if !e.summarizes(item) || arts.Summary != nil {
		report(100, "summarization skipped")
		return queue.Outcome{Next: StageStoring, Artifacts: arts}
	}
	if arts.Transcript == nil {
		return queue.Outcome{Artifacts: arts,
			Err: services.Wrap(services.KindInternal, StageSummarizing, "summarize", "no transcript to summarize", nil)}
	}

	maxWords := item.Options.SummaryWords
	if maxWords <= 0 {
		maxWords = e.opts.MaxSummaryWords
	}
	req := llm.SummaryRequest{Text: arts.Transcript.PlainText(), MaxWords: maxWords}
	if arts.Metadata != nil {
		req.Title = arts.Metadata.Title
		req.Channel = arts.Metadata.Owner
	}

	report(10, "summarizing transcript")
	summary, err := e.deps.Summarizer.Summarize(ctx, req)
	if err != nil {
		return queue.Outcome{Artifacts: arts, Err: err}
	}
	e.logger.Debug("summary generated",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String("model", summary.Model),
		logging.Int("word_count", summary.WordCount),
		logging.Duration("latency", summary.Latency),
	)
	return queue.Outcome{Next: StageStoring, Artifacts: arts.Merge(media.Artifacts{Summary: &summary})}
}

func (e *Executor) store(ctx context.Context, item queue.Item, report queue.ReportFunc) queue.Outcome {
	arts := item.Artifacts
	if arts.Transcript == nil || arts.Metadata == nil {
		return queue.Outcome{Artifacts: arts,
			Err: services.Wrap(services.KindInternal, StageStoring, "store", "nothing to store", nil)}
	}
	if e.deps.Store == nil {
		return queue.Outcome{Artifacts: arts,
			Err: services.Wrap(services.KindConfiguration, StageStoring, "store", "store not configured", services.ErrConfiguration)}
	}

	tags := e.tags(item)
	ingestedAt := e.now().UTC()

	// A retry after a memory failure must not write the relational rows again.
	if arts.Stored == nil || arts.Stored.VideoID == 0 {
		report(10, "saving transcript")
		stored, err := e.deps.Store.Save(ctx, store.Record{
			Metadata:       *arts.Metadata,
			Transcript:     *arts.Transcript,
			Summary:        arts.Summary,
			Tags:           tags,
			KeepTimestamps: item.Options.KeepTimestamps,
			IngestedAt:     ingestedAt,
		})
		if err != nil {
			return queue.Outcome{Artifacts: arts, Err: err}
		}
		arts = arts.Merge(media.Artifacts{Stored: &stored})
	}

	if e.deps.Memory != nil && arts.Stored.MemoryID == "" {
		report(60, "adding to semantic memory")
		meta := memory.Metadata{
			VideoID:     arts.Stored.VideoID,
			SourceID:    arts.Metadata.SourceID,
			Title:       arts.Metadata.Title,
			Channel:     arts.Metadata.Owner,
			PublishedAt: arts.Metadata.PublishedAt,
			Tags:        tags,
			IngestedAt:  ingestedAt,
		}
		memoryID, err := e.deps.Memory.Add(ctx, memoryText(arts), meta)
		if err != nil {
			return queue.Outcome{Artifacts: arts, Err: err, Resumable: true}
		}
		stored := *arts.Stored
		stored.MemoryID = memoryID
		arts = arts.Merge(media.Artifacts{Stored: &stored})
	}

	e.cleanup(item)
	return queue.Outcome{Final: queue.StatusSucceeded, Artifacts: arts}
}

// tags combines caller tags with keyword tags. Without a summary the
// keywords come from the transcript alone.
func (e *Executor) tags(item queue.Item) []string {
	arts := item.Artifacts
	tags := append([]string(nil), item.Options.Tags...)
	switch {
	case arts.Summary != nil:
		tags = append(tags, arts.Summary.Keywords...)
	case arts.Transcript != nil:
		tags = append(tags, textutil.ExtractKeywords(nil, arts.Transcript.PlainText(), maxKeywordTags)...)
	}
	return dedupe(tags)
}

func memoryText(arts media.Artifacts) string {
	if arts.Summary != nil && strings.TrimSpace(arts.Summary.Text) != "" {
		return arts.Summary.Text
	}
	runes := []rune(arts.Transcript.PlainText())
	if len(runes) > memoryExcerptRunes {
		runes = runes[:memoryExcerptRunes]
	}
	return string(runes)
}

func (e *Executor) itemDir(item queue.Item) string {
	if strings.TrimSpace(e.opts.WorkDir) == "" {
		return ""
	}
	name := item.SourceID
	if name == "" {
		name = "item"
	}
	return filepath.Join(e.opts.WorkDir, name+"-"+strconv.FormatInt(item.ID, 10))
}

func (e *Executor) cleanup(item queue.Item) {
	dir := e.itemDir(item)
	if dir == "" || e.opts.KeepWorkFiles {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		logging.WarnWithContext(e.logger, "work directory cleanup failed", "work_dir_cleanup_failed",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.String("path", dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the directory manually"),
			logging.String(logging.FieldImpact, "downloaded media remains on disk"),
		)
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
