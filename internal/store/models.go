package store

import (
	"errors"
	"time"

	"sage/internal/media"
)

// ErrNotFound is returned when a requested video has no stored record.
var ErrNotFound = errors.New("video not found")

// Video is the persisted metadata row for one ingestion. Re-ingesting the
// same source creates a new row; earlier rows are kept.
type Video struct {
	ID          int64
	SourceID    string
	URL         string
	Title       string
	Channel     string
	ChannelID   string
	PublishedAt time.Time
	Duration    time.Duration
	Tags        []string
	IngestedAt  time.Time
}

// Entry is a stored video together with its transcript and optional summary.
type Entry struct {
	Video        Video
	TranscriptID int64
	Transcript   media.Transcript
	SummaryID    int64
	Summary      *media.Summary
}

// Record is the input to Save.
type Record struct {
	Metadata   media.Metadata
	Transcript media.Transcript
	Summary    *media.Summary
	Tags       []string
	// KeepTimestamps stores the timestamped view as the transcript text.
	KeepTimestamps bool
	IngestedAt     time.Time
}

// KeywordHit is one full-text match. Score is higher for better matches.
type KeywordHit struct {
	Video   Video
	Score   float64
	Snippet string
}

// Counts summarizes the store contents.
type Counts struct {
	Videos      int
	Transcripts int
	Summaries   int
	FastPath    int
	SlowPath    int
}

type segmentRow struct {
	OffsetMS   int64  `json:"offset_ms"`
	DurationMS int64  `json:"duration_ms"`
	Text       string `json:"text"`
}
