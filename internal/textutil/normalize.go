package textutil

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	markupTagPattern  = regexp.MustCompile(`<[^>]*>`)
	captionCuePattern = regexp.MustCompile(`\[[^\]]{0,40}\]`)
)

// NormalizeText converts caption or transcription text into its canonical
// form: NFKC, no markup, no control characters, single spaces.
func NormalizeText(text string) string {
	if text == "" {
		return ""
	}
	text = html.UnescapeString(text)
	text = markupTagPattern.ReplaceAllString(text, " ")
	text = captionCuePattern.ReplaceAllString(text, " ")
	text = norm.NFKC.String(text)
	text = strings.Map(func(r rune) rune {
		switch {
		case r == '\uFFFD':
			return -1
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return ' '
		default:
			return r
		}
	}, text)
	return CollapseWhitespace(text)
}

// CollapseWhitespace trims text and joins its fields with single spaces.
func CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// WordCount returns the number of whitespace-delimited tokens in text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
