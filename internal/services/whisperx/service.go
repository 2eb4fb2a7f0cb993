package whisperx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	langpkg "sage/internal/language"
	"sage/internal/logging"
	"sage/internal/media"
	"sage/internal/media/ffprobe"
	"sage/internal/services"
)

const stageName = "slow_path_transcribe"

// Service provides WhisperX transcription capabilities.
type Service struct {
	cfg           Config
	ffmpegBinary  string
	logger        *slog.Logger
	commandRunner func(ctx context.Context, name string, args ...string) error
	probe         func(ctx context.Context, path string) (ffprobe.Result, error)
}

// NewService creates a WhisperX service with the given configuration.
func NewService(cfg Config, ffmpegBinary string, logger *slog.Logger) *Service {
	if ffmpegBinary == "" {
		ffmpegBinary = FFmpegCommand
	}
	return &Service{
		cfg:          cfg,
		ffmpegBinary: ffmpegBinary,
		logger:       logging.NewComponentLogger(logger, "whisperx"),
		probe: func(ctx context.Context, path string) (ffprobe.Result, error) {
			return ffprobe.Inspect(ctx, FFprobeCommand, path)
		},
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// WithProber replaces the ffprobe inspection (for testing).
func (s *Service) WithProber(probe func(ctx context.Context, path string) (ffprobe.Result, error)) {
	s.probe = probe
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	if s.cfg.Model != "" {
		return s.cfg.Model
	}
	return DefaultModel
}

// Transcribe converts download to WAV inside dir and runs WhisperX over it.
// Confidence is the mean word alignment score when WhisperX reports one.
func (s *Service) Transcribe(ctx context.Context, download media.Download, dir string) (media.Transcription, error) {
	var empty media.Transcription
	if strings.TrimSpace(download.Path) == "" {
		return empty, services.Wrap(services.KindMediaUnavailable, stageName, "transcribe", "no downloaded media", nil)
	}
	if dir == "" {
		dir = filepath.Dir(download.Path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return empty, services.Wrap(services.KindInternal, stageName, "ensure work dir", "", err)
	}

	probed, err := s.inspect(ctx, download.Path)
	if err != nil {
		return empty, err
	}

	started := time.Now()
	base := strings.TrimSuffix(filepath.Base(download.Path), filepath.Ext(download.Path))
	wavPath := filepath.Join(dir, base+".wav")
	if err := s.run(ctx, s.ffmpegBinary, extractArgs(download.Path, wavPath)...); err != nil {
		return empty, s.classify("extract audio", err)
	}
	defer os.Remove(wavPath)

	if err := s.run(ctx, UVXCommand, s.buildArgs(wavPath, dir)...); err != nil {
		return empty, s.classify("whisperx", err)
	}

	jsonPath := filepath.Join(dir, base+".json")
	payload, err := loadPayload(jsonPath)
	if err != nil {
		return empty, services.Wrap(services.KindInternal, stageName, "read whisperx output", "", err)
	}
	result := payload.transcription()
	result.MediaDuration = probed
	if result.Language == "" {
		result.Language = langpkg.ToISO2(s.cfg.Language)
	}
	logging.WithContext(ctx, s.logger).Info("transcription complete",
		logging.String("model", s.Model()),
		logging.Int("segments", len(result.Segments)),
		logging.Float64("confidence", result.Confidence),
		logging.String("language", result.Language),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "transcription_complete"),
	)
	return result, nil
}

// inspect rejects media without an audio stream and returns its duration.
// A failed probe is not fatal; ffmpeg reports unreadable media on its own.
func (s *Service) inspect(ctx context.Context, path string) (time.Duration, error) {
	if s.probe == nil {
		return 0, nil
	}
	result, err := s.probe(ctx, path)
	if err != nil {
		s.logger.Debug("media probe skipped", logging.Error(err))
		return 0, nil
	}
	if result.AudioStreamCount() == 0 {
		return 0, services.Wrap(services.KindMediaUnavailable, stageName, "probe", "downloaded media has no audio stream", nil)
	}
	return result.Duration(), nil
}

func (s *Service) classify(operation string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return services.Wrap(services.KindCancelled, stageName, operation, "", err)
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.KindNetwork, stageName, operation, "timed out", err)
	case errors.Is(err, exec.ErrNotFound):
		return services.Wrap(services.KindMediaUnavailable, stageName, operation, "speech-to-text engine is not installed", err)
	default:
		return services.Wrap(services.KindInternal, stageName, operation, "", err)
	}
}

// run executes a command, using the custom runner if set.
func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec

	// Torch 2.6 changed torch.load default to weights_only=true, breaking WhisperX/pyannote.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}

	if output, err := cmd.CombinedOutput(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// buildArgs constructs the uvx command arguments for WhisperX.
func (s *Service) buildArgs(source, outputDir string) []string {
	args := make([]string, 0, 40)

	if s.cfg.CUDAEnabled {
		args = append(args,
			"--index-url", CUDAIndexURL,
			"--extra-index-url", PypiIndexURL,
		)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}

	args = append(args,
		"whisperx",
		source,
		"--model", s.Model(),
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--segment_resolution", SegmentResolution,
		"--chunk_size", ChunkSize,
		"--vad_onset", VADOnset,
		"--vad_offset", VADOffset,
		"--beam_size", BeamSize,
		"--temperature", Temperature,
	)

	vadMethod := s.cfg.VADMethod
	if vadMethod == "" {
		vadMethod = VADMethodSilero
	}
	args = append(args, "--vad_method", vadMethod)
	if vadMethod == VADMethodPyannote && s.cfg.HFToken != "" {
		args = append(args, "--hf_token", s.cfg.HFToken)
	}

	if lang := langpkg.ToISO2(s.cfg.Language); lang != "" {
		args = append(args, "--language", lang)
	}

	if s.cfg.CUDAEnabled {
		args = append(args, "--device", CUDADevice)
	} else {
		args = append(args, "--device", CPUDevice, "--compute_type", CPUComputeType)
	}

	return args
}

// Word represents a single word with timing from WhisperX output.
type Word struct {
	Word  string   `json:"word"`
	Start float64  `json:"start"`
	End   float64  `json:"end"`
	Score *float64 `json:"score"`
}

// Segment represents a transcribed segment from WhisperX JSON output.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Words []Word  `json:"words"`
}

type whisperXPayload struct {
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// LoadSegments loads segments from a WhisperX JSON file.
func LoadSegments(jsonPath string) ([]Segment, error) {
	payload, err := loadPayload(jsonPath)
	if err != nil {
		return nil, err
	}
	return payload.Segments, nil
}

func loadPayload(jsonPath string) (whisperXPayload, error) {
	var payload whisperXPayload
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return payload, err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("parse whisperx json: %w", err)
	}
	return payload, nil
}

func (p whisperXPayload) transcription() media.Transcription {
	out := media.Transcription{
		Language: langpkg.ToISO2(p.Language),
		Segments: make([]media.Segment, 0, len(p.Segments)),
	}
	var (
		scoreSum float64
		scored   int
	)
	for _, seg := range p.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		start := secondsToDuration(seg.Start)
		out.Segments = append(out.Segments, media.Segment{
			Offset:   start,
			Duration: max(secondsToDuration(seg.End)-start, 0),
			Text:     text,
		})
		for _, word := range seg.Words {
			if word.Score != nil {
				scoreSum += *word.Score
				scored++
			}
		}
	}
	if scored > 0 {
		out.Confidence = math.Min(math.Max(scoreSum/float64(scored), 0), 1)
	}
	return out
}

func secondsToDuration(seconds float64) time.Duration {
	if seconds <= 0 || math.IsNaN(seconds) {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
