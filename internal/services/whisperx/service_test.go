package whisperx_test

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"sage/internal/media"
	"sage/internal/media/ffprobe"
	"sage/internal/services"
	"sage/internal/services/whisperx"
)

const sampleOutput = `{
  "language": "en",
  "segments": [
    {"text": " Hello there. ", "start": 0.0, "end": 1.5,
     "words": [{"word": "Hello", "score": 0.9}, {"word": "there.", "score": 0.7}]},
    {"text": "   ", "start": 1.5, "end": 2.0, "words": []},
    {"text": "General Kenobi.", "start": 2.0, "end": 3.25,
     "words": [{"word": "General", "score": 0.8}, {"word": "Kenobi."}]}
  ]
}`

type recordedCall struct {
	name string
	args []string
}

func argValue(args []string, flag string) string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestTranscribe(t *testing.T) {
	dir := t.TempDir()
	var calls []recordedCall
	svc := whisperx.NewService(whisperx.Config{Model: "small", Language: "english"}, "ffmpeg-test", nil)
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		calls = append(calls, recordedCall{name: name, args: args})
		if name == whisperx.UVXCommand {
			source := args[slices.Index(args, "whisperx")+1]
			base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
			out := filepath.Join(argValue(args, "--output_dir"), base+".json")
			return os.WriteFile(out, []byte(sampleOutput), 0o644)
		}
		return nil
	})

	result, err := svc.Transcribe(context.Background(), media.Download{Path: filepath.Join(dir, "abc.m4a")}, dir)
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if len(calls) != 2 || calls[0].name != "ffmpeg-test" || calls[1].name != whisperx.UVXCommand {
		t.Fatalf("unexpected calls %+v", calls)
	}
	if got := argValue(calls[1].args, "--language"); got != "en" {
		t.Fatalf("expected --language en, got %q", got)
	}
	if got := argValue(calls[1].args, "--model"); got != "small" {
		t.Fatalf("expected --model small, got %q", got)
	}
	if len(result.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(result.Segments))
	}
	if result.Segments[0].Text != "Hello there." {
		t.Fatalf("unexpected text %q", result.Segments[0].Text)
	}
	if result.Segments[1].Offset != 2*time.Second || result.Segments[1].Duration != 1250*time.Millisecond {
		t.Fatalf("unexpected timing %+v", result.Segments[1])
	}
	if math.Abs(result.Confidence-0.8) > 1e-9 {
		t.Fatalf("expected confidence 0.8, got %v", result.Confidence)
	}
	if result.Language != "en" {
		t.Fatalf("expected language en, got %q", result.Language)
	}
}

func TestTranscribeClassifiesFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want services.Kind
	}{
		{name: "missing binary", err: fmt.Errorf("uvx: %w", exec.ErrNotFound), want: services.KindMediaUnavailable},
		{name: "cancelled", err: context.Canceled, want: services.KindCancelled},
		{name: "crash", err: fmt.Errorf("exit status 1"), want: services.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := whisperx.NewService(whisperx.Config{}, "", nil)
			svc.WithCommandRunner(func(context.Context, string, ...string) error { return tt.err })
			_, err := svc.Transcribe(context.Background(), media.Download{Path: "/tmp/x.m4a"}, t.TempDir())
			if got := services.KindOf(err); got != tt.want {
				t.Fatalf("kind = %s, want %s (%v)", got, tt.want, err)
			}
		})
	}
}

func TestTranscribeRequiresMedia(t *testing.T) {
	svc := whisperx.NewService(whisperx.Config{}, "", nil)
	_, err := svc.Transcribe(context.Background(), media.Download{}, t.TempDir())
	if services.KindOf(err) != services.KindMediaUnavailable {
		t.Fatalf("expected media_unavailable, got %v", err)
	}
}

func TestTranscribeMissingOutput(t *testing.T) {
	svc := whisperx.NewService(whisperx.Config{CUDAEnabled: true, VADMethod: whisperx.VADMethodPyannote, HFToken: "hf"}, "", nil)
	var uvxArgs []string
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		if name == whisperx.UVXCommand {
			uvxArgs = args
		}
		return nil
	})
	_, err := svc.Transcribe(context.Background(), media.Download{Path: "/tmp/x.m4a"}, t.TempDir())
	if services.KindOf(err) != services.KindInternal {
		t.Fatalf("expected internal, got %v", err)
	}
	if argValue(uvxArgs, "--device") != whisperx.CUDADevice || argValue(uvxArgs, "--hf_token") != "hf" {
		t.Fatalf("unexpected args %v", uvxArgs)
	}
}

func TestTranscribeRejectsMediaWithoutAudio(t *testing.T) {
	svc := whisperx.NewService(whisperx.Config{}, "", nil)
	ran := false
	svc.WithCommandRunner(func(context.Context, string, ...string) error {
		ran = true
		return nil
	})
	svc.WithProber(func(context.Context, string) (ffprobe.Result, error) {
		return ffprobe.Result{Streams: []ffprobe.Stream{{CodecType: "video"}}}, nil
	})
	_, err := svc.Transcribe(context.Background(), media.Download{Path: "/tmp/x.mp4"}, t.TempDir())
	if services.KindOf(err) != services.KindMediaUnavailable {
		t.Fatalf("expected media_unavailable, got %v", err)
	}
	if ran {
		t.Fatal("no command should run for media without audio")
	}
}

func TestTranscribeRecordsProbedDuration(t *testing.T) {
	dir := t.TempDir()
	svc := whisperx.NewService(whisperx.Config{}, "", nil)
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		if name == whisperx.UVXCommand {
			return os.WriteFile(filepath.Join(argValue(args, "--output_dir"), "clip.json"), []byte(sampleOutput), 0o644)
		}
		return nil
	})
	svc.WithProber(func(context.Context, string) (ffprobe.Result, error) {
		return ffprobe.Result{
			Streams: []ffprobe.Stream{{CodecType: "audio"}},
			Format:  ffprobe.Format{Duration: "90.5"},
		}, nil
	})
	result, err := svc.Transcribe(context.Background(), media.Download{Path: filepath.Join(dir, "clip.m4a")}, dir)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.MediaDuration != 90500*time.Millisecond {
		t.Fatalf("MediaDuration = %v, want 1m30.5s", result.MediaDuration)
	}
}

func TestTranscribeIgnoresProbeFailure(t *testing.T) {
	dir := t.TempDir()
	svc := whisperx.NewService(whisperx.Config{}, "", nil)
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		if name == whisperx.UVXCommand {
			return os.WriteFile(filepath.Join(argValue(args, "--output_dir"), "clip.json"), []byte(sampleOutput), 0o644)
		}
		return nil
	})
	svc.WithProber(func(context.Context, string) (ffprobe.Result, error) {
		return ffprobe.Result{}, exec.ErrNotFound
	})
	result, err := svc.Transcribe(context.Background(), media.Download{Path: filepath.Join(dir, "clip.m4a")}, dir)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.MediaDuration != 0 {
		t.Fatalf("expected unknown duration, got %v", result.MediaDuration)
	}
}
