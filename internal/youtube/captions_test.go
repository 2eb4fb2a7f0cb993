package youtube_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	ytdl "github.com/kkdai/youtube/v2"

	"sage/internal/acquisition"
	"sage/internal/config"
	"sage/internal/services"
	"sage/internal/youtube"
)

const timedTextDoc = `<?xml version="1.0" encoding="utf-8" ?>
<timedtext format="3"><body>
<p t="0" d="1500"><s>Hello</s><s t="400"> &amp;amp; welcome</s></p>
<p t="1500" d="2000">to the show</p>
<p t="3500" d="10">   </p>
</body></timedtext>`

const legacyDoc = `<?xml version="1.0" encoding="utf-8" ?>
<transcript>
<text start="0.5" dur="1.25">first line</text>
<text start="1.75" dur="2">second &amp;#39;line&amp;#39;</text>
<text start="4" dur="1"></text>
</transcript>`

func TestParseCaptionsTimedText(t *testing.T) {
	captions, err := youtube.ParseCaptions([]byte(timedTextDoc))
	if err != nil {
		t.Fatalf("ParseCaptions returned error: %v", err)
	}
	if len(captions.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(captions.Segments))
	}
	first := captions.Segments[0]
	if first.Text != "Hello &amp; welcome" {
		t.Fatalf("unexpected first text %q", first.Text)
	}
	if first.Offset != 0 || first.Duration != 1500*time.Millisecond {
		t.Fatalf("unexpected timing %v/%v", first.Offset, first.Duration)
	}
	if captions.Segments[1].Text != "to the show" || captions.Segments[1].Offset != 1500*time.Millisecond {
		t.Fatalf("unexpected second segment %+v", captions.Segments[1])
	}
}

func TestParseCaptionsLegacyTranscript(t *testing.T) {
	captions, err := youtube.ParseCaptions([]byte(legacyDoc))
	if err != nil {
		t.Fatalf("ParseCaptions returned error: %v", err)
	}
	if len(captions.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(captions.Segments))
	}
	if got := captions.Segments[0]; got.Offset != 500*time.Millisecond || got.Duration != 1250*time.Millisecond {
		t.Fatalf("unexpected timing %+v", got)
	}
	if got := captions.Segments[1].Text; got != "second &#39;line&#39;" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestParseCaptionsRejectsUnknownDocument(t *testing.T) {
	for _, doc := range []string{"<html></html>", "not xml"} {
		_, err := youtube.ParseCaptions([]byte(doc))
		if err == nil {
			t.Fatalf("expected error for %q", doc)
		}
		if kind := services.KindOf(err); kind != services.KindInternal {
			t.Fatalf("kind for %q = %s, want internal", doc, kind)
		}
	}
}

func TestSelectTrackPrefersManualInPreferredLanguage(t *testing.T) {
	tracks := []ytdl.CaptionTrack{
		{LanguageCode: "de", BaseURL: "de"},
		{LanguageCode: "en", Kind: "asr", BaseURL: "en-asr"},
		{LanguageCode: "en-GB", BaseURL: "en-gb"},
	}
	tests := []struct {
		name      string
		languages []string
		want      string
	}{
		{name: "manual regional match beats asr", languages: []string{"en"}, want: "en-gb"},
		{name: "first preference wins", languages: []string{"de", "en"}, want: "de"},
		{name: "no preference match takes first manual", languages: []string{"fr"}, want: "de"},
		{name: "no preferences", languages: nil, want: "de"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			track, ok := youtube.SelectTrack(tracks, tt.languages)
			if !ok || track.BaseURL != tt.want {
				t.Fatalf("SelectTrack = %q (%v), want %q", track.BaseURL, ok, tt.want)
			}
		})
	}
}

func TestSelectTrackFallsBackToASR(t *testing.T) {
	tracks := []ytdl.CaptionTrack{{LanguageCode: "ja", Kind: "asr", BaseURL: "ja-asr"}}
	track, ok := youtube.SelectTrack(tracks, []string{"en"})
	if !ok || track.BaseURL != "ja-asr" {
		t.Fatalf("SelectTrack = %q (%v)", track.BaseURL, ok)
	}
	if _, ok := youtube.SelectTrack(nil, []string{"en"}); ok {
		t.Fatal("expected no track for empty list")
	}
}

func TestFetchTrack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(timedTextDoc))
		case "/empty":
			_, _ = w.Write([]byte("  "))
		default:
			code, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/"))
			if err != nil {
				code = http.StatusInternalServerError
			}
			w.WriteHeader(code)
		}
	}))
	defer server.Close()

	client := youtube.New(config.YouTube{CaptionLanguages: []string{"en"}}, nil, youtube.WithHTTPClient(server.Client()))
	ctx := context.Background()

	captions, err := client.FetchTrack(ctx, server.URL+"/ok")
	if err != nil {
		t.Fatalf("FetchTrack returned error: %v", err)
	}
	if len(captions.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(captions.Segments))
	}

	if _, err := client.FetchTrack(ctx, server.URL+"/empty"); !errors.Is(err, acquisition.ErrNotAvailable) {
		t.Fatalf("empty body error = %v, want ErrNotAvailable", err)
	}

	statuses := map[int]services.Kind{
		http.StatusTooManyRequests:    services.KindRateLimited,
		http.StatusServiceUnavailable: services.KindServiceUnavailable,
		http.StatusNotFound:           services.KindNotAccessible,
		http.StatusBadRequest:         services.KindNetwork,
	}
	for code, want := range statuses {
		_, err := client.FetchTrack(ctx, server.URL+"/"+strconv.Itoa(code))
		if got := services.KindOf(err); got != want {
			t.Fatalf("status %d: kind = %s, want %s", code, got, want)
		}
	}
}
