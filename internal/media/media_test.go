package media_test

import (
	"testing"
	"time"

	"sage/internal/media"
)

func TestTranscriptViewsShareCanonicalSegments(t *testing.T) {
	tr := &media.Transcript{
		Text: "hello there general kenobi",
		Segments: []media.Segment{
			{Offset: 5 * time.Second, Duration: 2 * time.Second, Text: "hello there"},
			{Offset: 3725 * time.Second, Duration: time.Second, Text: "general kenobi"},
		},
	}
	if got := tr.View(false); got != "hello there general kenobi" {
		t.Fatalf("unexpected plain view %q", got)
	}
	want := "[00:05] hello there\n[1:02:05] general kenobi"
	if got := tr.View(true); got != want {
		t.Fatalf("unexpected timestamped view %q, want %q", got, want)
	}
}

func TestTimestampedTextWithoutSegmentsFallsBackToText(t *testing.T) {
	tr := &media.Transcript{Text: "untimed text"}
	if got := tr.TimestampedText(); got != "untimed text" {
		t.Fatalf("expected plain fallback, got %q", got)
	}
	var nilTranscript *media.Transcript
	if nilTranscript.PlainText() != "" || nilTranscript.TimestampedText() != "" {
		t.Fatal("expected nil transcript views to be empty")
	}
}

func TestArtifactsMergeKeepsExisting(t *testing.T) {
	base := media.Artifacts{Metadata: &media.Metadata{Title: "first"}}
	merged := base.Merge(media.Artifacts{Summary: &media.Summary{Text: "short"}})
	if merged.Metadata == nil || merged.Metadata.Title != "first" {
		t.Fatalf("expected metadata preserved, got %+v", merged.Metadata)
	}
	if merged.Summary == nil || merged.Summary.Text != "short" {
		t.Fatalf("expected summary merged, got %+v", merged.Summary)
	}
	if base.Summary != nil {
		t.Fatal("expected merge to leave receiver untouched")
	}
}
