package acquisition

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"sage/internal/media"
	"sage/internal/services"
)

// ErrNotAvailable is returned by a TranscriptSource when the source has no
// existing transcript. It is an expected outcome, not a failure.
var ErrNotAvailable = errors.New("transcript not available")

// TranscriptSource fetches existing captions for a source.
type TranscriptSource interface {
	Fetch(ctx context.Context, sourceID string) (media.Captions, error)
}

// MetadataExtractor resolves descriptive metadata and confirms the source is
// reachable.
type MetadataExtractor interface {
	Describe(ctx context.Context, sourceID string) (media.Metadata, error)
}

// MediaFetcher materializes raw media into dir.
type MediaFetcher interface {
	Download(ctx context.Context, sourceID, dir string) (media.Download, error)
}

// Transcriber runs speech-to-text over downloaded media.
type Transcriber interface {
	Transcribe(ctx context.Context, download media.Download, dir string) (media.Transcription, error)
}

var sourceIDPattern = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)

// ParseSourceID extracts the canonical 11-character video identifier from a
// bare ID or a watch, short-link, embed, or shorts URL.
func ParseSourceID(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", invalidSource(input, "source identifier is empty")
	}
	if sourceIDPattern.MatchString(trimmed) {
		return trimmed, nil
	}

	raw := trimmed
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", invalidSource(input, "source is neither an ID nor a URL")
	}

	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	path := strings.Trim(parsed.Path, "/")

	var candidate string
	switch host {
	case "youtu.be":
		candidate, _, _ = strings.Cut(path, "/")
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		switch {
		case path == "watch":
			candidate = parsed.Query().Get("v")
		case strings.HasPrefix(path, "embed/"), strings.HasPrefix(path, "shorts/"), strings.HasPrefix(path, "live/"), strings.HasPrefix(path, "v/"):
			_, rest, _ := strings.Cut(path, "/")
			candidate, _, _ = strings.Cut(rest, "/")
		}
	default:
		return "", invalidSource(input, fmt.Sprintf("unsupported host %q", parsed.Hostname()))
	}

	if !sourceIDPattern.MatchString(candidate) {
		return "", invalidSource(input, "URL does not contain a valid video identifier")
	}
	return candidate, nil
}

// Canonicalize returns the dedupe key for input, falling back to the trimmed
// input when it cannot be parsed.
func Canonicalize(input string) string {
	if id, err := ParseSourceID(input); err == nil {
		return id
	}
	return strings.TrimSpace(input)
}

func invalidSource(input, message string) error {
	return services.Wrap(services.KindInvalidInput, string(StateValidating), "parse source", message,
		fmt.Errorf("%w: %q", services.ErrValidation, strings.TrimSpace(input)))
}
