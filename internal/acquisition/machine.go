package acquisition

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"sage/internal/logging"
	"sage/internal/media"
	"sage/internal/services"
)

// DefaultRateService is the rate-limited service the source-facing states use.
const DefaultRateService = "youtube"

// Request identifies one acquisition.
type Request struct {
	// Source is the identifier as submitted (ID or URL).
	Source string
	// WorkDir receives downloaded media and engine scratch output.
	WorkDir string
}

// ReportFunc receives stage-local progress in [0,100].
type ReportFunc func(percent float64, message string)

func (f ReportFunc) report(percent float64, message string) {
	if f != nil {
		f(percent, message)
	}
}

// Transition is the outcome of running one state.
type Transition struct {
	From      State
	Next      State
	Artifacts media.Artifacts
	Err       error
}

type stepFunc func(ctx context.Context, req Request, arts media.Artifacts, report ReportFunc) (State, media.Artifacts, error)

type transition struct {
	services    []string
	step        stepFunc
	fallback    State
	defaultKind services.Kind
}

// Dependencies are the external collaborators a Machine drives. Source may be
// nil to always take the slow path.
type Dependencies struct {
	Source      TranscriptSource
	Metadata    MetadataExtractor
	Fetcher     MediaFetcher
	Transcriber Transcriber
}

// Options tune a Machine.
type Options struct {
	// MinWordsPerMinute is the spoken-word density below which slow-path
	// output is treated as no speech.
	MinWordsPerMinute float64
	// RateService names the budget consumed by source-facing states.
	RateService string
	Logger      *slog.Logger
}

// Machine executes the acquisition transition table.
type Machine struct {
	deps   Dependencies
	opts   Options
	logger *slog.Logger
	table  map[State]transition
}

// New constructs a Machine.
func New(deps Dependencies, opts Options) *Machine {
	if strings.TrimSpace(opts.RateService) == "" {
		opts.RateService = DefaultRateService
	}
	m := &Machine{
		deps:   deps,
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "acquisition"),
	}
	source := []string{opts.RateService}
	m.table = map[State]transition{
		StateValidating:     {services: source, step: m.validate, defaultKind: services.KindNotAccessible},
		StateFastPath:       {services: source, step: m.fastPath, fallback: StateSlowDownload, defaultKind: services.KindNetwork},
		StateSlowDownload:   {services: source, step: m.download, defaultKind: services.KindMediaUnavailable},
		StateSlowTranscribe: {step: m.transcribe, defaultKind: services.KindInternal},
		StateNormalizing:    {step: m.normalize, defaultKind: services.KindInternal},
	}
	return m
}

// Services returns the rate-limited services state touches.
func (m *Machine) Services(state State) []string {
	entry, ok := m.table[state]
	if !ok {
		return nil
	}
	return append([]string(nil), entry.services...)
}

// Fallback returns the state to continue from once err has exhausted the
// retries of state. Input and access failures never fall through.
func (m *Machine) Fallback(state State, err error) (State, bool) {
	entry, ok := m.table[state]
	if !ok || entry.fallback == "" {
		return "", false
	}
	switch services.KindOf(err) {
	case services.KindCancelled, services.KindInvalidInput, services.KindNotAccessible, services.KindConfiguration:
		return "", false
	}
	return entry.fallback, true
}

// Step runs exactly one state. Failures carry a classified kind; Next is
// StateFailed when Err is set.
func (m *Machine) Step(ctx context.Context, req Request, state State, arts media.Artifacts, report ReportFunc) Transition {
	entry, ok := m.table[state]
	if !ok {
		return Transition{From: state, Next: StateFailed, Artifacts: arts,
			Err: services.Wrap(services.KindInternal, string(state), "step", "no transition for state", nil)}
	}
	if err := ctx.Err(); err != nil {
		return Transition{From: state, Next: StateFailed, Artifacts: arts,
			Err: services.Wrap(services.KindCancelled, string(state), "step", "acquisition cancelled", err)}
	}

	report.report(0, "")
	next, out, err := entry.step(ctx, req, arts, report)
	if err != nil {
		return Transition{From: state, Next: StateFailed, Artifacts: out, Err: classify(state, entry.defaultKind, err)}
	}
	report.report(100, "")
	return Transition{From: state, Next: next, Artifacts: out}
}

func (m *Machine) validate(ctx context.Context, req Request, arts media.Artifacts, report ReportFunc) (State, media.Artifacts, error) {
	id, err := ParseSourceID(req.Source)
	if err != nil {
		return StateFailed, arts, err
	}
	if m.deps.Metadata == nil {
		meta := media.Metadata{SourceID: id}
		return StateFastPath, arts.Merge(media.Artifacts{Metadata: &meta}), nil
	}
	report.report(30, "resolving metadata")
	meta, err := m.deps.Metadata.Describe(ctx, id)
	if err != nil {
		return StateFailed, arts, err
	}
	meta.SourceID = id
	return StateFastPath, arts.Merge(media.Artifacts{Metadata: &meta}), nil
}

func (m *Machine) fastPath(ctx context.Context, _ Request, arts media.Artifacts, report ReportFunc) (State, media.Artifacts, error) {
	if m.deps.Source == nil {
		return StateSlowDownload, arts, nil
	}
	report.report(10, "fetching captions")
	captions, err := m.deps.Source.Fetch(ctx, sourceIDOf(arts))
	if errors.Is(err, ErrNotAvailable) || (err == nil && len(captions.Segments) == 0) {
		report.report(100, "captions unavailable")
		return StateSlowDownload, arts, nil
	}
	if err != nil {
		return StateFailed, arts, err
	}
	return StateNormalizing, arts.Merge(media.Artifacts{Captions: &captions}), nil
}

func (m *Machine) download(ctx context.Context, req Request, arts media.Artifacts, report ReportFunc) (State, media.Artifacts, error) {
	if m.deps.Fetcher == nil || m.deps.Transcriber == nil {
		return StateFailed, arts, services.Wrap(services.KindMediaUnavailable, string(StateSlowDownload), "download",
			"no captions and no speech-to-text fallback configured", nil)
	}
	report.report(5, "downloading media")
	dl, err := m.deps.Fetcher.Download(ctx, sourceIDOf(arts), req.WorkDir)
	if err != nil {
		return StateFailed, arts, err
	}
	if dl.Duration <= 0 && arts.Metadata != nil {
		dl.Duration = arts.Metadata.Duration
	}
	return StateSlowTranscribe, arts.Merge(media.Artifacts{Download: &dl}), nil
}

func (m *Machine) transcribe(ctx context.Context, req Request, arts media.Artifacts, report ReportFunc) (State, media.Artifacts, error) {
	if arts.Download == nil {
		return StateFailed, arts, services.Wrap(services.KindInternal, string(StateSlowTranscribe), "transcribe",
			"no downloaded media to transcribe", nil)
	}
	if m.deps.Transcriber == nil {
		return StateFailed, arts, services.Wrap(services.KindMediaUnavailable, string(StateSlowTranscribe), "transcribe",
			"speech-to-text fallback not configured", nil)
	}
	report.report(5, "transcribing audio")
	raw, err := m.deps.Transcriber.Transcribe(ctx, *arts.Download, req.WorkDir)
	if err != nil {
		return StateFailed, arts, err
	}
	arts = arts.Merge(media.Artifacts{Raw: &raw})

	transcript := buildTranscript(raw.Segments, raw.Language, media.PathSlow, &raw.Confidence)
	if isNoSpeech(transcript, mediaDuration(arts), m.opts.MinWordsPerMinute) {
		m.logger.Info("no speech detected",
			logging.String(logging.FieldSourceID, sourceIDOf(arts)),
			logging.Int("word_count", transcript.WordCount),
			logging.Duration("media_duration", mediaDuration(arts)),
			logging.String(logging.FieldEventType, "no_speech"),
		)
		return StateNoSpeech, arts.Merge(media.Artifacts{Transcript: &transcript}), nil
	}
	return StateNormalizing, arts, nil
}

func (m *Machine) normalize(_ context.Context, _ Request, arts media.Artifacts, report ReportFunc) (State, media.Artifacts, error) {
	var transcript media.Transcript
	switch {
	case arts.Captions != nil:
		transcript = buildTranscript(arts.Captions.Segments, arts.Captions.Language, media.PathFast, nil)
	case arts.Raw != nil:
		transcript = buildTranscript(arts.Raw.Segments, arts.Raw.Language, media.PathSlow, &arts.Raw.Confidence)
	default:
		return StateFailed, arts, services.Wrap(services.KindInternal, string(StateNormalizing), "normalize",
			"no captions or transcription to normalize", nil)
	}
	report.report(50, "normalizing text")
	arts = arts.Merge(media.Artifacts{Transcript: &transcript})
	if transcript.Text == "" {
		return StateNoSpeech, arts, nil
	}
	return StateSucceeded, arts, nil
}

func sourceIDOf(arts media.Artifacts) string {
	if arts.Metadata == nil {
		return ""
	}
	return arts.Metadata.SourceID
}

func mediaDuration(arts media.Artifacts) time.Duration {
	if arts.Raw != nil && arts.Raw.MediaDuration > 0 {
		return arts.Raw.MediaDuration
	}
	if arts.Download != nil && arts.Download.Duration > 0 {
		return arts.Download.Duration
	}
	if arts.Metadata != nil {
		return arts.Metadata.Duration
	}
	return 0
}

func classify(state State, fallback services.Kind, err error) error {
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		return err
	}
	kind := services.KindOf(err)
	if kind == services.KindInternal {
		kind = fallback
	}
	return services.Wrap(kind, string(state), "step", "", err)
}
