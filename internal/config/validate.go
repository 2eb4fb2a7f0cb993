package config

import (
	"errors"
	"fmt"
	"sort"

	"sage/internal/services"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateRateLimits(); err != nil {
		return err
	}
	if err := c.validateSearch(); err != nil {
		return err
	}
	if err := c.validateProgress(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateQueue() error {
	if c.Queue.MaxWorkers <= 0 {
		return invalid("queue.max_workers must be positive")
	}
	if c.Queue.MaxAttempts <= 0 {
		return invalid("queue.max_attempts must be positive")
	}
	if c.Queue.RetryBaseDelayMS < 0 || c.Queue.RetryMaxDelayMS < 0 {
		return invalid("queue retry delays must be non-negative")
	}
	if c.Queue.RetryMaxDelayMS < c.Queue.RetryBaseDelayMS {
		return invalid("queue.retry_max_delay_ms must be at least queue.retry_base_delay_ms")
	}
	if c.Queue.RetryJitter < 0 || c.Queue.RetryJitter > 1 {
		return invalid("queue.retry_jitter must be between 0 and 1")
	}
	if c.Queue.StallTimeoutSeconds <= 0 {
		return invalid("queue.stall_timeout_seconds must be positive")
	}
	if c.Queue.ProgressBuffer <= 0 {
		return invalid("queue.progress_buffer must be positive")
	}
	return nil
}

// validateRateLimits rejects negative budgets. Capacity 0 is accepted: the
// service becomes unserviceable and items that need it stall instead of failing.
func (c *Config) validateRateLimits() error {
	names := make([]string, 0, len(c.RateLimits))
	for name := range c.RateLimits {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		limit := c.RateLimits[name]
		if limit.Capacity < 0 {
			return invalid(fmt.Sprintf("rate_limits.%s.capacity must be non-negative", name))
		}
		if limit.RefillPerSecond < 0 {
			return invalid(fmt.Sprintf("rate_limits.%s.refill_per_second must be non-negative", name))
		}
	}
	return nil
}

func (c *Config) validateSearch() error {
	if c.Search.KeywordWeight < 0 || c.Search.SemanticWeight < 0 {
		return invalid("search weights must be non-negative")
	}
	if c.Search.KeywordWeight+c.Search.SemanticWeight == 0 {
		return invalid("search.keyword_weight and search.semantic_weight cannot both be zero")
	}
	if c.Search.DefaultLimit <= 0 {
		return invalid("search.default_limit must be positive")
	}
	if c.Search.CandidateFactor < 1 {
		return invalid("search.candidate_factor must be at least 1")
	}
	return nil
}

func (c *Config) validateProgress() error {
	var total float64
	for stage, weight := range c.Progress {
		if weight < 0 {
			return invalid(fmt.Sprintf("progress.%s must be non-negative", stage))
		}
		total += weight
	}
	if total <= 0 {
		return invalid("progress weights must sum to a positive value")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if c.Transcription.MinWordsPerMinute < 0 {
		return invalid("transcription.min_words_per_minute must be non-negative")
	}
	switch c.Transcription.VADMethod {
	case "silero", "pyannote":
		return nil
	default:
		return invalid(fmt.Sprintf("transcription.vad_method %q is not supported (use silero or pyannote)", c.Transcription.VADMethod))
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return invalid(fmt.Sprintf("logging.format %q is not supported (use console or json)", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid(fmt.Sprintf("logging.level %q is not supported", c.Logging.Level))
	}
	return nil
}

func invalid(message string) error {
	return fmt.Errorf("%w: %w", services.ErrConfiguration, errors.New(message))
}
