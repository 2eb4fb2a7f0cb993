package textutil

import (
	"reflect"
	"testing"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"collapses whitespace", "  hello \n\t world  ", "hello world"},
		{"strips markup", "<font color=\"#fff\">hi</font> there", "hi there"},
		{"unescapes entities", "rock &amp; roll &#39;n&#39; more", "rock & roll 'n' more"},
		{"drops caption cues", "[Music] welcome back [Applause]", "welcome back"},
		{"control characters", "line\u0000one\u200btwo", "line one two"},
		{"nfkc", "ﬁle №1", "file No1"},
		{"empty", "", ""},
		{"only cues", "[Music]", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.input); got != tt.want {
				t.Fatalf("NormalizeText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeTextIsIdempotent(t *testing.T) {
	input := "<b>Coordination</b>   strategies &amp; [Laughter] teams\u0007"
	once := NormalizeText(input)
	if twice := NormalizeText(once); twice != once {
		t.Fatalf("expected idempotent normalization, got %q then %q", once, twice)
	}
}

func TestWordCount(t *testing.T) {
	if got := WordCount(" one two\nthree "); got != 3 {
		t.Fatalf("WordCount = %d, want 3", got)
	}
	if got := WordCount(""); got != 0 {
		t.Fatalf("WordCount(empty) = %d, want 0", got)
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"simple words", "Hello World", []string{"hello", "world"}},
		{"filters short", "a to the quick fox", []string{"the", "quick", "fox"}},
		{"handles punctuation", "Hello, World! How are you?", []string{"hello", "world", "how", "are", "you"}},
		{"empty string", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("Tokenize() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("token[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestExtractKeywordsCuratedFirst(t *testing.T) {
	got := ExtractKeywords(
		[]string{"Distributed Systems", "  ", "distributed systems", "Alice"},
		"consensus consensus consensus raft raft the the the leader 2024 2024 2024",
		4,
	)
	want := []string{"distributed systems", "alice", "consensus", "raft"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractKeywords = %v, want %v", got, want)
	}
}

func TestExtractKeywordsLimit(t *testing.T) {
	if got := ExtractKeywords([]string{"a1x", "b2y", "c3z"}, "", 2); len(got) != 2 {
		t.Fatalf("expected limit to cap curated terms, got %v", got)
	}
	if got := ExtractKeywords(nil, "anything here", 0); got != nil {
		t.Fatalf("expected nil for zero limit, got %v", got)
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct{ input, want string }{
		{"dQw4w9WgXcQ", "dqw4w9wgxcq"},
		{"  ", "unknown"},
		{"a/b c", "a_b_c"},
		{"--edge--", "edge"},
		{"!!!", "unknown"},
	}
	for _, tt := range tests {
		if got := SanitizeToken(tt.input); got != tt.want {
			t.Fatalf("SanitizeToken(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
