package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"sage/internal/config"
	"sage/internal/services"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{"SAGE_LLM_API_KEY", "OPENROUTER_API_KEY", "SAGE_EMBEDDINGS_API_KEY", "OPENAI_API_KEY", "HF_TOKEN", "HUGGING_FACE_HUB_TOKEN"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return home
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	home := isolateEnv(t)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(home, ".local", "share", "sage")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "sage.db") {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath())
	}
	if cfg.Queue.MaxAttempts != 3 {
		t.Fatalf("expected default max attempts 3, got %d", cfg.Queue.MaxAttempts)
	}
	if !cfg.Queue.KeepTimestamps {
		t.Fatal("expected timestamps kept by default")
	}
	if cfg.LLM.MaxSummaryWords != 300 {
		t.Fatalf("expected 300 summary words, got %d", cfg.LLM.MaxSummaryWords)
	}
	if cfg.Search.KeywordWeight != 0.5 || cfg.Search.SemanticWeight != 0.5 {
		t.Fatalf("unexpected search weights %+v", cfg.Search)
	}
	if cfg.SemanticEnabled() {
		t.Fatal("expected semantic memory disabled without an API key")
	}
	if cfg.SummarizationEnabled() {
		t.Fatal("expected summarization disabled without an API key")
	}
	if _, ok := cfg.RateLimits[config.ServiceYouTube]; !ok {
		t.Fatalf("expected default youtube budget, got %v", cfg.RateLimits)
	}
}

func TestLoadCustomPath(t *testing.T) {
	isolateEnv(t)
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "sage.toml")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Queue struct {
			MaxWorkers int `toml:"max_workers"`
		} `toml:"queue"`
		RateLimits map[string]config.RateLimit `toml:"rate_limits"`
		Search     struct {
			KeywordWeight  float64 `toml:"keyword_weight"`
			SemanticWeight float64 `toml:"semantic_weight"`
		} `toml:"search"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Queue.MaxWorkers = 4
	custom.RateLimits = map[string]config.RateLimit{"Transcription": {Capacity: 2, RefillPerSecond: 0.25}}
	custom.Search.KeywordWeight = 0.7
	custom.Search.SemanticWeight = 0.3
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempDir, "data") {
		t.Fatalf("unexpected data dir %q", cfg.Paths.DataDir)
	}
	if cfg.Queue.MaxWorkers != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.Queue.MaxWorkers)
	}
	limit, ok := cfg.RateLimits["transcription"]
	if !ok || limit.Capacity != 2 || limit.RefillPerSecond != 0.25 {
		t.Fatalf("expected lower-cased transcription budget, got %v", cfg.RateLimits)
	}
	if cfg.Search.KeywordWeight != 0.7 || cfg.Search.SemanticWeight != 0.3 {
		t.Fatalf("unexpected search weights %+v", cfg.Search)
	}
}

func TestEnvFallbacksForAPIKeys(t *testing.T) {
	isolateEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "router-key")
	t.Setenv("OPENAI_API_KEY", "embed-key")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.APIKey != "router-key" {
		t.Fatalf("expected llm key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Embeddings.APIKey != "embed-key" {
		t.Fatalf("expected embeddings key from env, got %q", cfg.Embeddings.APIKey)
	}
	if !cfg.SemanticEnabled() || !cfg.SummarizationEnabled() {
		t.Fatal("expected semantic memory and summarization enabled")
	}
}

func TestEnvFileDoesNotOverrideEnvironment(t *testing.T) {
	isolateEnv(t)
	tempDir := t.TempDir()
	envPath := filepath.Join(tempDir, "sage.env")
	if err := os.WriteFile(envPath, []byte("SAGE_LLM_API_KEY=from-file\nSAGE_EMBEDDINGS_API_KEY=embed-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("SAGE_LLM_API_KEY", "from-env")
	t.Cleanup(func() { os.Unsetenv("SAGE_EMBEDDINGS_API_KEY") })

	configPath := filepath.Join(tempDir, "sage.toml")
	body := "[paths]\nenv_file = \"" + envPath + "\"\n"
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.APIKey != "from-env" {
		t.Fatalf("expected environment to win, got %q", cfg.LLM.APIKey)
	}
	if cfg.Embeddings.APIKey != "embed-file" {
		t.Fatalf("expected embeddings key from env file, got %q", cfg.Embeddings.APIKey)
	}
}

func TestRateLimitsFileOverlay(t *testing.T) {
	isolateEnv(t)
	tempDir := t.TempDir()
	yamlPath := filepath.Join(tempDir, "rate_limits.yaml")
	overlay := `services:
  youtube:
    requests_per_minute: 30
    burst: 5
  llm:
    capacity: 0
  embeddings:
    requests_per_hour: 3600
`
	if err := os.WriteFile(yamlPath, []byte(overlay), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	configPath := filepath.Join(tempDir, "sage.toml")
	body := "[paths]\nrate_limits_file = \"" + yamlPath + "\"\n"
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	yt := cfg.RateLimits[config.ServiceYouTube]
	if yt.Capacity != 5 || yt.RefillPerSecond != 0.5 {
		t.Fatalf("unexpected youtube budget %+v", yt)
	}
	if llm := cfg.RateLimits[config.ServiceLLM]; llm.Capacity != 0 || llm.RefillPerSecond != 0 {
		t.Fatalf("expected unserviceable llm budget, got %+v", llm)
	}
	emb := cfg.RateLimits[config.ServiceEmbeddings]
	if emb.RefillPerSecond != 1 || emb.Capacity != 60 {
		t.Fatalf("unexpected embeddings budget %+v", emb)
	}
}

func TestLoadRateLimitFileMissing(t *testing.T) {
	limits, err := config.LoadRateLimitFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("expected missing file to be ignored, got %v", err)
	}
	if len(limits) != 0 {
		t.Fatalf("expected empty overlay, got %v", limits)
	}
}

func TestLoadRateLimitFileRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("services:\n  youtube:\n    per_fortnight: 3\n"), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	if _, err := config.LoadRateLimitFile(path); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestCreateSample(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load, got %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Queue.StallTimeoutSeconds != 300 {
		t.Fatalf("unexpected stall timeout %d", cfg.Queue.StallTimeoutSeconds)
	}
}

func TestEncodeMasksSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = "secret-llm"
	cfg.Embeddings.APIKey = "secret-embed"
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if strings.Contains(string(data), "secret-") {
		t.Fatalf("expected secrets to be masked, got %s", data)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"workers", func(c *config.Config) { c.Queue.MaxWorkers = 0 }, "queue.max_workers"},
		{"attempts", func(c *config.Config) { c.Queue.MaxAttempts = 0 }, "queue.max_attempts"},
		{"jitter", func(c *config.Config) { c.Queue.RetryJitter = 2 }, "queue.retry_jitter"},
		{"delay order", func(c *config.Config) { c.Queue.RetryMaxDelayMS = 10 }, "retry_max_delay_ms"},
		{"negative capacity", func(c *config.Config) {
			c.RateLimits = map[string]config.RateLimit{"youtube": {Capacity: -1}}
		}, "rate_limits.youtube.capacity"},
		{"zero weights", func(c *config.Config) {
			c.Search.KeywordWeight = 0
			c.Search.SemanticWeight = 0
		}, "cannot both be zero"},
		{"progress", func(c *config.Config) { c.Progress = map[string]float64{"validating": -1} }, "progress.validating"},
		{"vad", func(c *config.Config) { c.Transcription.VADMethod = "energy" }, "vad_method"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in %v", tt.want, err)
			}
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration marker, got %v", err)
			}
		})
	}
}

func TestValidateAcceptsZeroCapacity(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimits["llm"] = config.RateLimit{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected zero capacity to be accepted, got %v", err)
	}
}
