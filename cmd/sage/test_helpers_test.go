package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sage/internal/acquisition"
	"sage/internal/engine"
	"sage/internal/media"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	opts       []engine.Option
}

// fakeYouTube serves captions for the videos it knows and reports every other
// ID as private.
type fakeYouTube struct {
	titles map[string]string
}

func (f fakeYouTube) Describe(_ context.Context, id string) (media.Metadata, error) {
	title, ok := f.titles[id]
	if !ok {
		return media.Metadata{}, errors.New("video is private")
	}
	return media.Metadata{
		SourceID:    id,
		URL:         "https://www.youtube.com/watch?v=" + id,
		Title:       title,
		Owner:       "Systems Weekly",
		PublishedAt: time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		Duration:    2 * time.Minute,
	}, nil
}

func (f fakeYouTube) Fetch(_ context.Context, id string) (media.Captions, error) {
	return media.Captions{Language: "en", Segments: []media.Segment{
		{Offset: 0, Duration: 4 * time.Second, Text: strings.ToLower(f.titles[id])},
		{Offset: 4 * time.Second, Duration: 4 * time.Second, Text: "see you next week"},
	}}, nil
}

func (fakeYouTube) Download(context.Context, string, string) (media.Download, error) {
	return media.Download{}, errors.New("download not expected")
}

type noTranscriber struct{}

func (noTranscriber) Transcribe(context.Context, media.Download, string) (media.Transcription, error) {
	return media.Transcription{}, errors.New("transcription not expected")
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("SAGE_LLM_API_KEY", "")
	t.Setenv("SAGE_EMBEDDINGS_API_KEY", "")

	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q
work_dir = %q
env_file = ""

[llm]
enabled = false

[queue]
retry_base_delay_ms = 1
retry_max_delay_ms = 5

[logging]
level = "error"
`, filepath.Join(base, "data"), filepath.Join(base, "logs"), filepath.Join(base, "work"))
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	yt := fakeYouTube{titles: map[string]string{
		"aaaaaaaaaaa": "Consensus protocols explained",
		"bbbbbbbbbbb": "Sourdough baking basics",
	}}
	return &cliTestEnv{
		baseDir:    base,
		configPath: configPath,
		opts: []engine.Option{engine.WithAcquisition(acquisition.Dependencies{
			Source:      yt,
			Metadata:    yt,
			Fetcher:     yt,
			Transcriber: noTranscriber{},
		})},
	}
}

func (env *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand(env.opts...)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
