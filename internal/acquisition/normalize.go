package acquisition

import (
	"math"
	"strings"
	"time"

	"sage/internal/media"
	"sage/internal/textutil"
)

// buildTranscript produces the canonical normalized form: cleaned segments in
// offset order with empty ones dropped, and the joined text.
func buildTranscript(segments []media.Segment, language string, path media.Path, confidence *float64) media.Transcript {
	cleaned := make([]media.Segment, 0, len(segments))
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		text := textutil.NormalizeText(seg.Text)
		if text == "" {
			continue
		}
		seg.Text = text
		cleaned = append(cleaned, seg)
		parts = append(parts, text)
	}
	text := strings.Join(parts, " ")

	transcript := media.Transcript{
		Text:      text,
		Segments:  cleaned,
		Path:      path,
		WordCount: textutil.WordCount(text),
		Language:  strings.TrimSpace(language),
	}
	if confidence != nil {
		c := math.Min(math.Max(*confidence, 0), 1)
		transcript.Confidence = &c
	}
	return transcript
}

// isNoSpeech reports whether spoken-word density falls below minWPM. When the
// media duration is unknown, the last segment end is used instead.
func isNoSpeech(t media.Transcript, duration time.Duration, minWPM float64) bool {
	if t.WordCount == 0 {
		return true
	}
	if minWPM <= 0 {
		return false
	}
	if duration <= 0 && len(t.Segments) > 0 {
		duration = t.Segments[len(t.Segments)-1].End()
	}
	if duration <= 0 {
		return false
	}
	return float64(t.WordCount)/duration.Minutes() < minWPM
}
