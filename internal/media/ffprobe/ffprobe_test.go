package ffprobe

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"
)

const sampleJSON = `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video", "duration": "60.0"},
    {"index": 1, "codec_name": "aac", "codec_type": "audio", "duration": "61.5", "sample_rate": "44100", "channels": 2}
  ],
  "format": {"filename": "clip.mp4", "nb_streams": 2, "duration": "123.45", "format_name": "mov,mp4,m4a"}
}`

func TestParseAndHelpers(t *testing.T) {
	result, err := Parse([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.AudioStreamCount() != 1 {
		t.Fatalf("expected 1 audio stream, got %d", result.AudioStreamCount())
	}
	if got := result.Duration(); got != 123450*time.Millisecond {
		t.Fatalf("unexpected duration: %v", got)
	}
	if result.Streams[1].Channels != 2 {
		t.Fatalf("unexpected channels: %+v", result.Streams[1])
	}
}

func TestDurationFallsBackToAudioStream(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "audio", Duration: "42.5"}, {CodecType: "video", Duration: "99"}},
		Format:  Format{Duration: "N/A"},
	}
	if got := result.Duration(); got != 42500*time.Millisecond {
		t.Fatalf("unexpected duration: %v", got)
	}
	if got := (Result{Format: Format{Duration: "bad"}}).Duration(); got != 0 {
		t.Fatalf("expected zero duration, got %v", got)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestInspectMissingBinary(t *testing.T) {
	if _, err := Inspect(context.Background(), "", " "); err == nil {
		t.Fatal("expected error for empty path")
	}
	_, err := Inspect(context.Background(), "definitely-not-ffprobe-binary", "clip.mp4")
	if !errors.Is(err, exec.ErrNotFound) {
		t.Fatalf("expected exec.ErrNotFound, got %v", err)
	}
}
