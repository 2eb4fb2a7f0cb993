package language_test

import (
	"reflect"
	"testing"

	"sage/internal/language"
)

func TestToISO2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "en"},
		{"EN", "en"},
		{"eng", "en"},
		{"fre", "fr"},
		{"ger", "de"},
		{"chi", "zh"},
		{"english", "en"},
		{"French", "fr"},
		{"en-GB", "en"},
		{"en_US", "en"},
		{"pt-BR", "pt"},
		{"zh-Hans", "zh"},
		{"xy", "xy"},
		{"xyz", ""},
		{"", ""},
		{" ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := language.ToISO2(tt.input); got != tt.expected {
				t.Errorf("ToISO2(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMatches(t *testing.T) {
	if !language.Matches("en-GB", "eng") {
		t.Error("expected en-GB to match eng")
	}
	if language.Matches("de", "en") {
		t.Error("expected de not to match en")
	}
	if language.Matches("", "") {
		t.Error("expected blanks not to match")
	}
}

func TestDisplayName(t *testing.T) {
	if got := language.DisplayName("ja"); got != "Japanese" {
		t.Errorf("DisplayName(ja) = %q", got)
	}
	if got := language.DisplayName(""); got != "Unknown" {
		t.Errorf("DisplayName(\"\") = %q", got)
	}
	if got := language.DisplayName("qq"); got != "QQ" {
		t.Errorf("DisplayName(qq) = %q", got)
	}
}

func TestNormalizeList(t *testing.T) {
	got := language.NormalizeList([]string{"eng", " en ", "", "en-US", "German", "klingon"})
	want := []string{"en", "de", "klingon"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NormalizeList = %v, want %v", got, want)
	}
}
