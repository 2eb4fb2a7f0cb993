package config

const (
	defaultDataDir               = "~/.local/share/sage"
	defaultLogDir                = "~/.local/share/sage/logs"
	defaultWorkDir               = "~/.cache/sage/work"
	defaultEnvFile               = ".env"
	defaultCaptionLanguage       = "en"
	defaultRequestTimeoutSeconds = 30
	defaultWhisperXModel         = "large-v3-turbo"
	defaultVADMethod             = "silero"
	defaultMinWordsPerMinute     = 5
	defaultLLMBaseURL            = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel              = "google/gemini-3-flash-preview"
	defaultLLMReferer            = "https://github.com/sage-ingest/sage"
	defaultLLMTitle              = "Sage Summarizer"
	defaultLLMTimeoutSeconds     = 60
	defaultMaxSummaryWords       = 300
	defaultEmbeddingsBaseURL     = "https://api.openai.com/v1/embeddings"
	defaultEmbeddingsModel       = "text-embedding-3-small"
	defaultEmbeddingsTimeout     = 30
	defaultMaxWorkers            = 2
	defaultMaxAttempts           = 3
	defaultRetryBaseDelayMS      = 500
	defaultRetryMaxDelayMS       = 10_000
	defaultRetryJitter           = 0.2
	defaultStallTimeoutSeconds   = 300
	defaultProgressBuffer        = 64
	defaultKeywordWeight         = 0.5
	defaultSemanticWeight        = 0.5
	defaultSearchLimit           = 10
	defaultCandidateFactor       = 3
	defaultNtfyTimeoutSeconds    = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Service names used for rate budgets.
const (
	ServiceYouTube    = "youtube"
	ServiceLLM        = "llm"
	ServiceEmbeddings = "embeddings"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			WorkDir: defaultWorkDir,
			EnvFile: defaultEnvFile,
		},
		YouTube: YouTube{
			CaptionLanguages:      []string{defaultCaptionLanguage},
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
		},
		Transcription: Transcription{
			WhisperXModel:     defaultWhisperXModel,
			VADMethod:         defaultVADMethod,
			MinWordsPerMinute: defaultMinWordsPerMinute,
		},
		LLM: LLM{
			Enabled:         true,
			BaseURL:         defaultLLMBaseURL,
			Model:           defaultLLMModel,
			Referer:         defaultLLMReferer,
			Title:           defaultLLMTitle,
			TimeoutSeconds:  defaultLLMTimeoutSeconds,
			MaxSummaryWords: defaultMaxSummaryWords,
		},
		Embeddings: Embeddings{
			BaseURL:        defaultEmbeddingsBaseURL,
			Model:          defaultEmbeddingsModel,
			TimeoutSeconds: defaultEmbeddingsTimeout,
		},
		Queue: Queue{
			MaxWorkers:          defaultMaxWorkers,
			MaxAttempts:         defaultMaxAttempts,
			RetryBaseDelayMS:    defaultRetryBaseDelayMS,
			RetryMaxDelayMS:     defaultRetryMaxDelayMS,
			RetryJitter:         defaultRetryJitter,
			StallTimeoutSeconds: defaultStallTimeoutSeconds,
			ProgressBuffer:      defaultProgressBuffer,
			KeepTimestamps:      true,
		},
		RateLimits: DefaultRateLimits(),
		Search: Search{
			KeywordWeight:   defaultKeywordWeight,
			SemanticWeight:  defaultSemanticWeight,
			DefaultLimit:    defaultSearchLimit,
			CandidateFactor: defaultCandidateFactor,
		},
		Progress: DefaultProgressWeights(),
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

// DefaultRateLimits returns the built-in budgets per external service.
func DefaultRateLimits() map[string]RateLimit {
	return map[string]RateLimit{
		ServiceYouTube:    {Capacity: 10, RefillPerSecond: 1},
		ServiceLLM:        {Capacity: 5, RefillPerSecond: 0.5},
		ServiceEmbeddings: {Capacity: 20, RefillPerSecond: 5},
	}
}

// DefaultProgressWeights returns the share of overall progress per stage.
func DefaultProgressWeights() map[string]float64 {
	return map[string]float64{
		"validating":           5,
		"fast_path":            20,
		"slow_path_download":   15,
		"slow_path_transcribe": 20,
		"normalizing":          5,
		"summarizing":          20,
		"storing":              15,
	}
}
