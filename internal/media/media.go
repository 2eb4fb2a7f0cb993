// Package media holds the records that flow between acquisition,
// summarization, and storage.
package media

import (
	"fmt"
	"strings"
	"time"
)

// Path records which acquisition route produced a transcript.
type Path string

const (
	PathFast Path = "fast"
	PathSlow Path = "slow"
)

// Metadata describes a source as reported by the metadata extractor.
type Metadata struct {
	SourceID    string
	URL         string
	Title       string
	Owner       string
	ChannelID   string
	PublishedAt time.Time
	Duration    time.Duration
}

// Segment is one timed span of transcript text.
type Segment struct {
	Offset   time.Duration
	Duration time.Duration
	Text     string
}

// End returns the offset at which the segment finishes.
func (s Segment) End() time.Duration {
	return s.Offset + s.Duration
}

// Captions is the raw output of a transcript source.
type Captions struct {
	Language string
	Segments []Segment
}

// Download is a materialized media file on local disk.
type Download struct {
	Path     string
	MimeType string
	Size     int64
	Duration time.Duration
}

// Transcription is the raw output of the speech-to-text fallback.
type Transcription struct {
	Language   string
	Segments   []Segment
	Confidence float64
	// MediaDuration is the probed length of the audio, zero when unknown.
	MediaDuration time.Duration
}

// Transcript is the normalized acquisition result. Segments are the canonical
// form; Text and the timestamped view are both derived from them. When the
// source had no timing information Segments is empty and Text is canonical.
type Transcript struct {
	Text       string
	Segments   []Segment
	Path       Path
	Confidence *float64
	WordCount  int
	Language   string
}

// PlainText returns the stripped view.
func (t *Transcript) PlainText() string {
	if t == nil {
		return ""
	}
	return t.Text
}

// TimestampedText renders one "[mm:ss] text" line per segment.
func (t *Transcript) TimestampedText() string {
	if t == nil {
		return ""
	}
	if len(t.Segments) == 0 {
		return t.Text
	}
	var b strings.Builder
	for i, seg := range t.Segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteByte('[')
		b.WriteString(FormatOffset(seg.Offset))
		b.WriteString("] ")
		b.WriteString(seg.Text)
	}
	return b.String()
}

// View returns the timestamped or stripped representation.
func (t *Transcript) View(keepTimestamps bool) string {
	if keepTimestamps {
		return t.TimestampedText()
	}
	return t.PlainText()
}

// FormatOffset renders an offset as m:ss or h:mm:ss.
func FormatOffset(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// Summary is the structured condensation produced by the summarization model.
type Summary struct {
	Text      string
	Topics    []string
	Speakers  []string
	Takeaways []string
	Keywords  []string
	Model     string
	Cost      float64
	Latency   time.Duration
	WordCount int
}

// Stored records the identifiers assigned by the persistence layer.
type Stored struct {
	VideoID      int64
	TranscriptID int64
	SummaryID    int64
	MemoryID     string
}

// Artifacts accumulates everything computed for one work item. The queue
// carries it between stages so a persistence retry never recomputes
// acquisition or summarization.
type Artifacts struct {
	Metadata   *Metadata
	Captions   *Captions
	Download   *Download
	Raw        *Transcription
	Transcript *Transcript
	Summary    *Summary
	Stored     *Stored
}

// Merge overlays the non-nil fields of next onto a copy of a.
func (a Artifacts) Merge(next Artifacts) Artifacts {
	if next.Metadata != nil {
		a.Metadata = next.Metadata
	}
	if next.Captions != nil {
		a.Captions = next.Captions
	}
	if next.Download != nil {
		a.Download = next.Download
	}
	if next.Raw != nil {
		a.Raw = next.Raw
	}
	if next.Transcript != nil {
		a.Transcript = next.Transcript
	}
	if next.Summary != nil {
		a.Summary = next.Summary
	}
	if next.Stored != nil {
		a.Stored = next.Stored
	}
	return a
}
