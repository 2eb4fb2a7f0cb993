package queue

import (
	"context"
	"time"

	"sage/internal/media"
	"sage/internal/services"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusWaiting   Status = "waiting"
	StatusStalled   Status = "stalled"
	StatusSucceeded Status = "succeeded"
	StatusNoSpeech  Status = "no_speech"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition leaves s.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusNoSpeech, StatusFailed:
		return true
	default:
		return false
	}
}

// Options are the caller-supplied parameters of one submission.
type Options struct {
	Priority       int
	Force          bool
	Summarize      bool
	SummaryWords   int
	KeepTimestamps bool
	Tags           []string
}

// Item is a snapshot of one work item. Snapshots are copies; mutating them
// has no effect on the queue.
type Item struct {
	ID       int64
	Source   string
	SourceID string
	Priority int
	Options  Options

	Status       Status
	Stage        string
	Attempt      int
	Retries      int
	MaxAttempts  int
	StagePercent float64
	Progress     float64
	Message      string

	ErrorKind    services.Kind
	ErrorMessage string

	Artifacts media.Artifacts

	SubmittedAt  time.Time
	StartedAt    time.Time
	CompletedAt  time.Time
	NotBefore    time.Time
	WaitingSince time.Time

	CancelRequested bool
}

// Outcome is what an executor reports after running one stage of an item.
type Outcome struct {
	// Next is the stage to run next. Empty means the item is finished and
	// Final names the terminal status.
	Next  string
	Final Status
	// Artifacts replaces the item's accumulated artifacts.
	Artifacts media.Artifacts
	// Err fails the stage. Retryable kinds are rescheduled by the queue.
	Err error
	// Fallback is the stage to continue from once Err exhausts its retries.
	Fallback string
	// Resumable marks an Err raised after part of the item was persisted.
	// Once retries are exhausted the item fails with storage_failure so
	// RetryStorage can resume it at this stage.
	Resumable bool
}

// ReportFunc receives stage-local progress in [0,100].
type ReportFunc func(percent float64, message string)

// Executor runs item stages. The queue never calls Step concurrently for
// the same item.
type Executor interface {
	// Stages lists every stage in pipeline order; the first is the entry stage.
	Stages() []string
	// Services names the rate-limited services the item's current stage uses.
	Services(item Item) []string
	// Step runs the item's current stage.
	Step(ctx context.Context, item Item, report ReportFunc) Outcome
}

// Limiter reserves rate budgets without blocking. See ratelimit.Limiter.
type Limiter interface {
	AcquireAll(services []string, cost int) (time.Duration, error)
}

// Stats counts items by status.
type Stats map[Status]int
