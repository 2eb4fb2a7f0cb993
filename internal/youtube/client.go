package youtube

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ytdl "github.com/kkdai/youtube/v2"

	"sage/internal/config"
	"sage/internal/language"
	"sage/internal/logging"
)

const (
	defaultRequestTimeout = 30 * time.Second
	videoCacheTTL         = 10 * time.Minute
	videoCacheSize        = 64
)

// Client resolves videos through the YouTube innertube API.
type Client struct {
	yt         ytdl.Client
	httpClient *http.Client
	languages  []string
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.Mutex
	videos map[string]cachedVideo
}

type cachedVideo struct {
	video   *ytdl.Video
	fetched time.Time
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for API calls and caption
// downloads.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New constructs a client from the youtube config section.
func New(cfg config.YouTube, logger *slog.Logger, opts ...Option) *Client {
	timeout := defaultRequestTimeout
	if cfg.RequestTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		languages:  language.NormalizeList(cfg.CaptionLanguages),
		logger:     logging.NewComponentLogger(logger, "youtube"),
		now:        time.Now,
		videos:     make(map[string]cachedVideo),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.yt = ytdl.Client{HTTPClient: c.httpClient}
	return c
}

// video returns the player response for id, reusing a recent lookup so the
// validating, fast path, and download stages share one API call.
func (c *Client) video(ctx context.Context, id string) (*ytdl.Video, error) {
	now := c.now()
	c.mu.Lock()
	if cached, ok := c.videos[id]; ok && now.Sub(cached.fetched) < videoCacheTTL {
		c.mu.Unlock()
		return cached.video, nil
	}
	c.mu.Unlock()

	video, err := c.yt.GetVideoContext(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.videos) >= videoCacheSize {
		for key, cached := range c.videos {
			if now.Sub(cached.fetched) >= videoCacheTTL || len(c.videos) >= videoCacheSize {
				delete(c.videos, key)
			}
		}
	}
	c.videos[id] = cachedVideo{video: video, fetched: now}
	return video, nil
}
