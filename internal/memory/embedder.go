package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sage/internal/config"
	"sage/internal/services"
)

const maxEmbeddingResponseBytes = 32 << 20

// Embedder turns texts into vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Model string          `json:"model"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
	Wait       time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("embedding API %d: %s", e.StatusCode, e.Body)
}

func (e *httpStatusError) RetryAfter() time.Duration { return e.Wait }

// Client calls an OpenAI-compatible embeddings endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs an embeddings client from configuration.
func NewClient(cfg config.Embeddings, opts ...ClientOption) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		endpoint:   strings.TrimSpace(cfg.BaseURL),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      strings.TrimSpace(cfg.Model),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured embedding model.
func (c *Client) Model() string {
	return c.model
}

// Embed requests vectors for texts.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.apiKey == "" {
		return nil, classify("embed", errMissingKey)
	}

	body, err := json.Marshal(embeddingRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, classify("embed", fmt.Errorf("marshal: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, classify("embed", fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify("embed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxEmbeddingResponseBytes))
	if err != nil {
		return nil, classify("embed", fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		wait, _ := services.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return nil, classify("embed", &httpStatusError{StatusCode: resp.StatusCode, Body: truncate(string(payload), 256), Wait: wait})
	}

	var result embeddingResponse
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, classify("embed", &malformedResponseError{err: err})
	}
	if len(result.Data) != len(texts) {
		return nil, classify("embed", &malformedResponseError{err: fmt.Errorf("expected %d vectors, got %d", len(texts), len(result.Data))})
	}

	vectors := make([][]float32, len(texts))
	for i, d := range result.Data {
		idx := d.Index
		if idx < 0 || idx >= len(vectors) || vectors[idx] != nil {
			idx = i
		}
		vectors[idx] = d.Embedding
	}
	return vectors, nil
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
