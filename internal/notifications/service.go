package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sage/internal/config"
)

const userAgent = "sage/0.1.0"

// maxFailuresListed caps the failure lines included in a batch summary.
const maxFailuresListed = 5

// Failure describes one item that did not finish.
type Failure struct {
	Label string
	Kind  string
}

// Service defines the notification surface exposed to the CLI.
type Service interface {
	NotifyBatchStarted(ctx context.Context, count int) error
	NotifyBatchCompleted(ctx context.Context, succeeded int, failures []Failure, duration time.Duration) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg config.Notifications) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyBatchStarted(ctx context.Context, count int) error {
	noun := "videos"
	if count == 1 {
		noun = "video"
	}
	data := payload{
		title:    "Sage - Ingest Started",
		message:  fmt.Sprintf("Ingesting %d %s", count, noun),
		tags:     []string{"sage", "ingest", "started"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBatchCompleted(ctx context.Context, succeeded int, failures []Failure, duration time.Duration) error {
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	if len(failures) == 0 {
		return n.send(ctx, payload{
			title:   "Sage - Ingest Complete",
			message: fmt.Sprintf("Ingest complete: %d videos stored in %s", succeeded, durationText),
			tags:    []string{"sage", "ingest", "completed"},
		})
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "Ingest complete: %d succeeded, %d failed in %s", succeeded, len(failures), durationText)
	for i, failure := range failures {
		if i == maxFailuresListed {
			fmt.Fprintf(&builder, "\n... and %d more", len(failures)-maxFailuresListed)
			break
		}
		label := strings.TrimSpace(failure.Label)
		if kind := strings.TrimSpace(failure.Kind); kind != "" {
			label = fmt.Sprintf("%s (%s)", label, kind)
		}
		builder.WriteString("\n- ")
		builder.WriteString(label)
	}
	priority := "default"
	if succeeded == 0 {
		priority = "high"
	}
	return n.send(ctx, payload{
		title:    "Sage - Ingest Complete (with errors)",
		message:  builder.String(),
		tags:     []string{"sage", "ingest", "warning"},
		priority: priority,
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Sage - Error",
		message:  builder.String(),
		tags:     []string{"sage", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Sage - Test",
		message:  "Notification system test",
		tags:     []string{"sage", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyBatchStarted(context.Context, int) error                             { return nil }
func (noopService) NotifyBatchCompleted(context.Context, int, []Failure, time.Duration) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error                          { return nil }
func (noopService) TestNotification(context.Context) error                                    { return nil }
