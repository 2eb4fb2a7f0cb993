package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"sage/internal/config"
	"sage/internal/deps"
	"sage/internal/memory"
	"sage/internal/services/llm"
	"sage/internal/services/whisperx"
)

const serviceCheckTimeout = 30 * time.Second

// CheckLLM verifies that the summarization API is reachable and the key is
// valid. It makes a single attempt.
func CheckLLM(ctx context.Context, cfg config.LLM) Result {
	const name = "Summarization LLM"
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, serviceCheckTimeout)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Referer: cfg.Referer,
		Title:   cfg.Title,
	})

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeServiceError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", cfg.Model)}
}

// CheckEmbeddings embeds a short probe string to confirm the embeddings API
// accepts the configured key and model.
func CheckEmbeddings(ctx context.Context, cfg config.Embeddings) Result {
	const name = "Embeddings"
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, serviceCheckTimeout)
	defer cancel()

	client := memory.NewClient(cfg)
	vectors, err := client.Embed(checkCtx, []string{"sage preflight"})
	if err != nil {
		return Result{Name: name, Detail: summarizeServiceError(err)}
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return Result{Name: name, Detail: "empty embedding returned"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable (%d dimensions)", client.Model(), len(vectors[0]))}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the binaries the slow path needs. Both are
// optional: videos with captions ingest without them.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	description := "Required for speech-to-text when captions are missing"
	if cfg != nil && cfg.Transcription.CUDAEnabled {
		description += " (CUDA)"
	}
	return deps.CheckBinaries([]deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     whisperx.FFmpegCommand,
			Description: "Required to convert downloaded audio for transcription",
			Optional:    true,
		},
		{
			Name:        "FFprobe",
			Command:     whisperx.FFprobeCommand,
			Description: "Checks downloaded media for an audio stream before transcription",
			Optional:    true,
		},
		{
			Name:        "uvx",
			Command:     whisperx.UVXCommand,
			Description: description,
			Optional:    true,
		},
	})
}

// summarizeServiceError produces a human-readable summary for health check failures.
func summarizeServiceError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (API unreachable)"
	}
	return err.Error()
}
