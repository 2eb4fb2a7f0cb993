package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir        string `toml:"data_dir"`
	LogDir         string `toml:"log_dir"`
	WorkDir        string `toml:"work_dir"`
	RateLimitsFile string `toml:"rate_limits_file"`
	EnvFile        string `toml:"env_file"`
}

// YouTube contains configuration for the transcript source and media download.
type YouTube struct {
	CaptionLanguages      []string `toml:"caption_languages"`
	RequestTimeoutSeconds int      `toml:"request_timeout_seconds"`
}

// Transcription contains configuration for the slow-path speech-to-text engine.
type Transcription struct {
	WhisperXModel     string  `toml:"whisperx_model"`
	CUDAEnabled       bool    `toml:"cuda_enabled"`
	VADMethod         string  `toml:"vad_method"`
	HuggingFaceToken  string  `toml:"hf_token"`
	Language          string  `toml:"language"`
	MinWordsPerMinute float64 `toml:"min_words_per_minute"`
}

// LLM contains summarization connection settings.
type LLM struct {
	Enabled         bool   `toml:"enabled"`
	APIKey          string `toml:"api_key"`
	BaseURL         string `toml:"base_url"`
	Model           string `toml:"model"`
	Referer         string `toml:"referer"`
	Title           string `toml:"title"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	MaxSummaryWords int    `toml:"max_summary_words"`
}

// Embeddings contains semantic memory settings. Semantic memory is disabled
// when no API key is configured.
type Embeddings struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Queue contains processing queue and retry settings.
type Queue struct {
	MaxWorkers          int     `toml:"max_workers"`
	MaxAttempts         int     `toml:"max_attempts"`
	RetryBaseDelayMS    int     `toml:"retry_base_delay_ms"`
	RetryMaxDelayMS     int     `toml:"retry_max_delay_ms"`
	RetryJitter         float64 `toml:"retry_jitter"`
	StallTimeoutSeconds int     `toml:"stall_timeout_seconds"`
	ProgressBuffer      int     `toml:"progress_buffer"`
	KeepTimestamps      bool    `toml:"keep_timestamps"`
}

// RateLimit is the token bucket budget for one external service.
type RateLimit struct {
	Capacity        int     `toml:"capacity" yaml:"capacity"`
	RefillPerSecond float64 `toml:"refill_per_second" yaml:"refill_per_second"`
}

// Search contains hybrid search defaults.
type Search struct {
	KeywordWeight   float64 `toml:"keyword_weight"`
	SemanticWeight  float64 `toml:"semantic_weight"`
	DefaultLimit    int     `toml:"default_limit"`
	CandidateFactor int     `toml:"candidate_factor"`
}

// Notifications contains ntfy settings. Notifications are disabled when no
// topic is configured.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for sage. It is loaded once at
// process start and treated as immutable afterwards.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and scratch directories plus optional overlays
//   - YouTube: caption language preference and request timeout
//   - Transcription: WhisperX fallback settings and no-speech threshold
//   - LLM: summarization model connection
//   - Embeddings: semantic memory connection
//   - Queue: worker count, retry policy, stall timeout
//   - RateLimits: token bucket per external service
//   - Search: hybrid search weights
//   - Progress: stage weights used to compute overall progress
//   - Notifications: ntfy topic for batch completion messages
//   - Logging: log format and level
type Config struct {
	Paths         Paths                `toml:"paths"`
	YouTube       YouTube              `toml:"youtube"`
	Transcription Transcription        `toml:"transcription"`
	LLM           LLM                  `toml:"llm"`
	Embeddings    Embeddings           `toml:"embeddings"`
	Queue         Queue                `toml:"queue"`
	RateLimits    map[string]RateLimit `toml:"rate_limits"`
	Search        Search               `toml:"search"`
	Progress      map[string]float64   `toml:"progress"`
	Notifications Notifications        `toml:"notifications"`
	Logging       Logging              `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/sage/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadEnvFile(cfg.Paths.EnvFile); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("sage.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data, log, and work directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.WorkDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite path for the relational store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "sage.db")
}

// MemoryPath returns the SQLite path for the semantic memory store.
func (c *Config) MemoryPath() string {
	return filepath.Join(c.Paths.DataDir, "memory.db")
}

// LockPath returns the path of the single-ingest lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "ingest.lock")
}

// SemanticEnabled reports whether semantic memory has credentials.
func (c *Config) SemanticEnabled() bool {
	return strings.TrimSpace(c.Embeddings.APIKey) != ""
}

// SummarizationEnabled reports whether summaries can be produced.
func (c *Config) SummarizationEnabled() bool {
	return c.LLM.Enabled && strings.TrimSpace(c.LLM.APIKey) != ""
}

// StallTimeout returns the queue stall timeout as a duration.
func (c *Config) StallTimeout() time.Duration {
	return time.Duration(c.Queue.StallTimeoutSeconds) * time.Second
}

// RetryBaseDelay returns the retry base delay as a duration.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Queue.RetryBaseDelayMS) * time.Millisecond
}

// RetryMaxDelay returns the retry delay cap as a duration.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.Queue.RetryMaxDelayMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML with secrets masked.
func (c *Config) Encode() ([]byte, error) {
	masked := *c
	masked.LLM.APIKey = maskSecret(masked.LLM.APIKey)
	masked.Embeddings.APIKey = maskSecret(masked.Embeddings.APIKey)
	masked.Transcription.HuggingFaceToken = maskSecret(masked.Transcription.HuggingFaceToken)
	return toml.Marshal(masked)
}

func maskSecret(value string) string {
	if value == "" {
		return ""
	}
	return "********"
}
