package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sage/internal/services"
)

func TestSummarize(t *testing.T) {
	var captured chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		content := "```json\n" + `{"summary":"  Rust   ownership explained in depth. ",` +
			`"topics":["Rust","Ownership","rust"],"speakers":["Ana"],"key_takeaways":["Borrow, don't clone",""]}` + "\n```"
		payload := map[string]any{
			"model": "provider/model-x",
			"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 30, "total_tokens": 150, "cost": 0.0042},
			"choices": []any{
				map[string]any{"message": map[string]any{"content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	summary, err := client.Summarize(context.Background(), SummaryRequest{
		Title:    "Ownership",
		Channel:  "Systems",
		Text:     "ownership ownership borrow checker lifetimes",
		MaxWords: 4,
	})
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}
	if summary.Text != "Rust ownership explained in" {
		t.Fatalf("unexpected summary text %q", summary.Text)
	}
	if summary.WordCount != 4 {
		t.Fatalf("expected 4 words, got %d", summary.WordCount)
	}
	if len(summary.Topics) != 2 || summary.Topics[0] != "Rust" {
		t.Fatalf("unexpected topics %v", summary.Topics)
	}
	if len(summary.Takeaways) != 1 || len(summary.Speakers) != 1 {
		t.Fatalf("unexpected takeaways/speakers %v %v", summary.Takeaways, summary.Speakers)
	}
	if len(summary.Keywords) < 3 || summary.Keywords[0] != "rust" || summary.Keywords[1] != "ownership" {
		t.Fatalf("unexpected keywords %v", summary.Keywords)
	}
	if summary.Model != "provider/model-x" || summary.Cost != 0.0042 {
		t.Fatalf("unexpected model/cost %q %v", summary.Model, summary.Cost)
	}
	if captured.Usage == nil || !captured.Usage.Include {
		t.Fatal("expected usage accounting to be requested")
	}
	if !strings.Contains(captured.Messages[0].Content, "at most 4 words") {
		t.Fatalf("system prompt missing word limit: %q", captured.Messages[0].Content)
	}
	if !strings.Contains(captured.Messages[1].Content, "Title: Ownership") {
		t.Fatalf("user prompt missing title: %q", captured.Messages[1].Content)
	}
}

func TestSummarizeMalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": "I cannot do that"}}},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
	_, err := client.Summarize(context.Background(), SummaryRequest{Text: "hello world"})
	if kind := services.KindOf(err); kind != services.KindServiceUnavailable {
		t.Fatalf("expected service_unavailable, got %s (%v)", kind, err)
	}
}

func TestSummarizeValidation(t *testing.T) {
	client := NewClient(Config{APIKey: "test", Model: "demo"})
	if _, err := client.Summarize(context.Background(), SummaryRequest{Text: "   "}); services.KindOf(err) != services.KindInvalidInput {
		t.Fatalf("expected invalid_input, got %v", err)
	}
	unconfigured := NewClient(Config{Model: "demo"})
	if _, err := unconfigured.Summarize(context.Background(), SummaryRequest{Text: "hello"}); services.KindOf(err) != services.KindConfiguration {
		t.Fatalf("expected configuration, got %v", err)
	}
}
