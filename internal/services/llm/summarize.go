package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"sage/internal/media"
	"sage/internal/services"
	"sage/internal/textutil"
)

const (
	// DefaultSummaryWords bounds the summary length when the caller gives no limit.
	DefaultSummaryWords = 300
	// maxTranscriptRunes keeps long transcripts inside the model context window.
	maxTranscriptRunes = 120_000
	keywordLimit       = 10
)

// SummaryRequest describes one summarization call.
type SummaryRequest struct {
	Title    string
	Channel  string
	Text     string
	MaxWords int
}

type summaryPayload struct {
	Summary      string   `json:"summary"`
	Topics       []string `json:"topics"`
	Speakers     []string `json:"speakers"`
	KeyTakeaways []string `json:"key_takeaways"`
}

// Summarize condenses a transcript into a structured summary. Keywords are
// derived from the returned topics plus term frequency over the summary and
// transcript.
func (c *Client) Summarize(ctx context.Context, req SummaryRequest) (media.Summary, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return media.Summary{}, services.Wrap(services.KindInvalidInput, stageName, "summarize", "transcript is empty", services.ErrValidation)
	}
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return media.Summary{}, services.Wrap(services.KindConfiguration, stageName, "summarize", "api key required", services.ErrConfiguration)
	}
	maxWords := req.MaxWords
	if maxWords <= 0 {
		maxWords = DefaultSummaryWords
	}

	completion, err := c.CompleteJSON(ctx, summarySystemPrompt(maxWords), summaryUserPrompt(req.Title, req.Channel, text))
	if err != nil {
		return media.Summary{}, err
	}
	var parsed summaryPayload
	if err := DecodeLLMJSON(completion.Content, &parsed); err != nil {
		return media.Summary{}, services.Wrap(services.KindServiceUnavailable, stageName, "parse summary", "model returned malformed JSON", err)
	}
	summaryText := textutil.CollapseWhitespace(parsed.Summary)
	if summaryText == "" {
		return media.Summary{}, services.Wrap(services.KindServiceUnavailable, stageName, "parse summary", "model returned an empty summary", nil)
	}
	summaryText = truncateWords(summaryText, maxWords)

	topics := cleanList(parsed.Topics)
	return media.Summary{
		Text:      summaryText,
		Topics:    topics,
		Speakers:  cleanList(parsed.Speakers),
		Takeaways: cleanList(parsed.KeyTakeaways),
		Keywords:  textutil.ExtractKeywords(topics, summaryText+" "+text, keywordLimit),
		Model:     completion.Model,
		Cost:      completion.Usage.Cost,
		Latency:   completion.Latency,
		WordCount: textutil.WordCount(summaryText),
	}, nil
}

func summarySystemPrompt(maxWords int) string {
	return fmt.Sprintf(`You summarize video transcripts.
Respond with a single JSON object and nothing else:
{"summary": string, "topics": [string], "speakers": [string], "key_takeaways": [string]}
The summary must be at most %d words. List at most 8 topics, the named speakers if any, and at most 5 key takeaways.`, maxWords)
}

func summaryUserPrompt(title, channel, text string) string {
	if utf8.RuneCountInString(text) > maxTranscriptRunes {
		text = string([]rune(text)[:maxTranscriptRunes])
	}
	var b strings.Builder
	if title = strings.TrimSpace(title); title != "" {
		b.WriteString("Title: ")
		b.WriteString(title)
		b.WriteByte('\n')
	}
	if channel = strings.TrimSpace(channel); channel != "" {
		b.WriteString("Channel: ")
		b.WriteString(channel)
		b.WriteByte('\n')
	}
	b.WriteString("Transcript:\n")
	b.WriteString(text)
	return b.String()
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = textutil.CollapseWhitespace(value)
		if value == "" {
			continue
		}
		key := strings.ToLower(value)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, value)
	}
	return out
}

func truncateWords(text string, limit int) string {
	words := strings.Fields(text)
	if len(words) <= limit {
		return text
	}
	return strings.Join(words[:limit], " ")
}
