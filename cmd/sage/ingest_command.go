package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sage/internal/config"
	"sage/internal/logging"
	"sage/internal/notifications"
	"sage/internal/progress"
	"sage/internal/queue"
	"sage/internal/services"
)

type ingestOptions struct {
	priority     int
	force        bool
	noSummary    bool
	summaryWords int
	timestamps   bool
	workers      int
	tags         []string
	jsonOutput   bool
	quiet        bool
}

type ingestResultJSON struct {
	ItemID      int64      `json:"item_id"`
	Source      string     `json:"source"`
	SourceID    string     `json:"source_id,omitempty"`
	Status      string     `json:"status"`
	Title       string     `json:"title,omitempty"`
	Path        string     `json:"path,omitempty"`
	WordCount   int        `json:"word_count,omitempty"`
	Confidence  *float64   `json:"confidence,omitempty"`
	Summarized  bool       `json:"summarized"`
	VideoID     int64      `json:"video_id,omitempty"`
	MemoryID    string     `json:"memory_id,omitempty"`
	Attempts    int        `json:"attempts"`
	Error       *errorJSON `json:"error,omitempty"`
	SubmitError bool       `json:"submit_error,omitempty"`
}

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <url|id>...",
		Short: "Acquire, summarize, and store one or more videos",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("timestamps") {
				if cfg, err := ctx.ensureConfig(); err == nil {
					opts.timestamps = cfg.Queue.KeepTimestamps
				}
			}
			return runIngest(cmd, ctx, args, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.priority, "priority", "p", 0, "Queue priority; higher runs first")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Re-ingest even if the source is already queued")
	cmd.Flags().BoolVar(&opts.noSummary, "no-summary", false, "Skip summarization")
	cmd.Flags().IntVar(&opts.summaryWords, "summary-words", 0, "Target summary length in words")
	cmd.Flags().BoolVar(&opts.timestamps, "timestamps", false, "Store transcripts with [mm:ss] timestamps")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Override the configured worker count")
	cmd.Flags().StringSliceVarP(&opts.tags, "tag", "t", nil, "Tag to attach (repeatable)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress live progress")
	return cmd
}

func runIngest(cmd *cobra.Command, ctx *commandContext, sources []string, opts ingestOptions) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng, err := ctx.openEngine(func(cfg *config.Config) {
		if opts.workers > 0 {
			cfg.Queue.MaxWorkers = opts.workers
		}
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	sessionID := uuid.NewString()
	logger, _ := ctx.ensureLogger()
	if logger != nil {
		logger.Info("ingest session started",
			logging.String(logging.FieldCorrelationID, sessionID),
			logging.Int("sources", len(sources)),
		)
	}
	runCtx := services.WithRequestID(signalCtx, sessionID)

	var (
		sub          *progress.Subscription
		progressDone chan struct{}
	)
	stderr := cmd.ErrOrStderr()
	if !opts.quiet && !opts.jsonOutput && shouldColorize(stderr) {
		sub = eng.Subscribe(0, 0)
		progressDone = make(chan struct{})
		go func() {
			defer close(progressDone)
			for evt := range sub.C {
				fmt.Fprintln(stderr, renderProgressLine(evt, true))
			}
		}()
	}

	if err := eng.Start(runCtx); err != nil {
		return err
	}
	started := time.Now()
	notifier := notifications.NewService(eng.Config().Notifications)

	submitOpts := queue.Options{
		Priority:       opts.priority,
		Force:          opts.force,
		Summarize:      !opts.noSummary,
		SummaryWords:   opts.summaryWords,
		KeepTimestamps: opts.timestamps,
		Tags:           opts.tags,
	}

	results := make([]ingestResultJSON, len(sources))
	ids := make([]int64, len(sources))
	for i, source := range sources {
		results[i].Source = source
		id, err := eng.Enqueue(source, submitOpts)
		switch {
		case errors.Is(err, queue.ErrDuplicate):
			// The earlier submission of the same source is awaited instead.
			ids[i] = id
		case err != nil:
			results[i].Status = string(queue.StatusFailed)
			results[i].SubmitError = true
			results[i].Error = &errorJSON{Kind: string(services.KindOf(err)), Message: services.Message(err)}
		default:
			ids[i] = id
		}
	}

	if accepted := countAccepted(ids); accepted > 1 {
		notifyQuietly(logger, "batch started", notifier.NotifyBatchStarted(cmd.Context(), accepted))
	}

	var wg sync.WaitGroup
	var waitErr error
	var waitMu sync.Mutex
	for i, id := range ids {
		if id == 0 {
			continue
		}
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			item, err := eng.Wait(runCtx, id)
			if err != nil {
				waitMu.Lock()
				waitErr = errors.Join(waitErr, err)
				waitMu.Unlock()
				return
			}
			results[i] = resultFromItem(results[i].Source, item)
		}(i, id)
	}
	wg.Wait()

	eng.Stop()
	if sub != nil {
		sub.Close()
		<-progressDone
	}

	if waitErr != nil {
		return waitErr
	}

	succeeded, _, _ := tallyResults(results)
	notifyQuietly(logger, "batch completed",
		notifier.NotifyBatchCompleted(cmd.Context(), succeeded, failureList(results), time.Since(started)))

	if opts.jsonOutput {
		if err := writeJSON(cmd, results); err != nil {
			return err
		}
	} else {
		renderIngestResults(cmd.OutOrStdout(), results, shouldColorize(cmd.OutOrStdout()))
	}
	return ingestExitError(results)
}

func countAccepted(ids []int64) int {
	n := 0
	for _, id := range ids {
		if id != 0 {
			n++
		}
	}
	return n
}

// notifyQuietly logs notification failures; they never fail an ingest.
func notifyQuietly(logger *slog.Logger, event string, err error) {
	if err == nil || logger == nil {
		return
	}
	logging.WarnWithContext(logger, "notification failed", "notification_failed",
		logging.String("notification", event),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and run sage test-notify"),
	)
}

func failureList(results []ingestResultJSON) []notifications.Failure {
	var failures []notifications.Failure
	for _, res := range results {
		if res.Error == nil {
			continue
		}
		failures = append(failures, notifications.Failure{Label: resultLabel(res), Kind: res.Error.Kind})
	}
	return failures
}

func resultLabel(res ingestResultJSON) string {
	switch {
	case res.Title != "":
		return res.Title
	case res.SourceID != "":
		return res.SourceID
	default:
		return res.Source
	}
}

func resultFromItem(source string, item queue.Item) ingestResultJSON {
	res := ingestResultJSON{
		ItemID:   item.ID,
		Source:   source,
		SourceID: item.SourceID,
		Status:   string(item.Status),
		Attempts: item.Attempt,
	}
	arts := item.Artifacts
	if arts.Metadata != nil {
		res.Title = arts.Metadata.Title
	}
	if arts.Transcript != nil {
		res.Path = string(arts.Transcript.Path)
		res.WordCount = arts.Transcript.WordCount
		res.Confidence = arts.Transcript.Confidence
	}
	res.Summarized = arts.Summary != nil
	if arts.Stored != nil {
		res.VideoID = arts.Stored.VideoID
		res.MemoryID = arts.Stored.MemoryID
	}
	if item.Status == queue.StatusFailed {
		res.Error = &errorJSON{Kind: string(item.ErrorKind), Message: item.ErrorMessage}
	}
	return res
}

func renderIngestResults(out io.Writer, results []ingestResultJSON, colorize bool) {
	columns := []column{
		{header: "ID", align: alignRight},
		{header: "Source"},
		{header: "Status"},
		{header: "Title", maxWidth: 40},
		{header: "Path"},
		{header: "Words", align: alignRight},
		{header: "Summary"},
		{header: "Stored", align: alignRight},
		{header: "Error", maxWidth: 48},
	}
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		id := ""
		if res.ItemID > 0 {
			id = strconv.FormatInt(res.ItemID, 10)
		}
		source := res.SourceID
		if source == "" {
			source = res.Source
		}
		path := res.Path
		if res.Confidence != nil {
			path = fmt.Sprintf("%s (%.0f%%)", path, *res.Confidence*100)
		}
		words := ""
		if res.WordCount > 0 {
			words = strconv.Itoa(res.WordCount)
		}
		stored := ""
		if res.VideoID > 0 {
			stored = strconv.FormatInt(res.VideoID, 10)
		}
		errText := ""
		if res.Error != nil {
			errText = res.Error.Kind
			if res.Error.Message != "" {
				errText += ": " + res.Error.Message
			}
		}
		rows = append(rows, []string{id, source, res.Status, res.Title, path, words, yesNo(res.Summarized), stored, errText})
	}
	fmt.Fprintln(out, renderTable(columns, rows))

	succeeded, noSpeech, failed := tallyResults(results)
	summary := fmt.Sprintf("%d succeeded, %d no speech, %d failed", succeeded, noSpeech, failed)
	kind := statusOK
	switch {
	case failed > 0:
		kind = statusError
	case noSpeech > 0:
		kind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Ingest", kind, summary, colorize))
}

func tallyResults(results []ingestResultJSON) (succeeded, noSpeech, failed int) {
	for _, res := range results {
		switch queue.Status(res.Status) {
		case queue.StatusSucceeded:
			succeeded++
		case queue.StatusNoSpeech:
			noSpeech++
		default:
			failed++
		}
	}
	return succeeded, noSpeech, failed
}

// ingestExitError returns nil when nothing failed. Otherwise the exit status
// is the highest code among the failed items.
func ingestExitError(results []ingestResultJSON) error {
	code := services.ExitSuccess
	var failures []string
	for _, res := range results {
		if res.Error == nil {
			continue
		}
		code = max(code, services.ExitCode(services.Kind(res.Error.Kind)))
		label := res.SourceID
		if label == "" {
			label = res.Source
		}
		failures = append(failures, fmt.Sprintf("%s (%s)", label, res.Error.Kind))
	}
	if len(failures) == 0 {
		return nil
	}
	if code == services.ExitSuccess {
		code = services.ExitProcessing
	}
	return &exitError{
		code: code,
		err:  fmt.Errorf("%d of %d sources failed: %s", len(failures), len(results), strings.Join(failures, ", ")),
	}
}

