package youtube

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	ytdl "github.com/kkdai/youtube/v2"

	"sage/internal/acquisition"
	"sage/internal/language"
	"sage/internal/logging"
	"sage/internal/media"
	"sage/internal/services"
)

const (
	captionKindASR  = "asr"
	maxCaptionBytes = 16 << 20
)

// Fetch returns the preferred caption track for id. A video without any
// caption track yields acquisition.ErrNotAvailable.
func (c *Client) Fetch(ctx context.Context, id string) (media.Captions, error) {
	video, err := c.video(ctx, id)
	if err != nil {
		return media.Captions{}, wrap("fast_path", "lookup captions", err)
	}
	track, ok := SelectTrack(video.CaptionTracks, c.languages)
	if !ok {
		return media.Captions{}, acquisition.ErrNotAvailable
	}
	logging.WithContext(ctx, c.logger).Debug("caption track selected",
		logging.String("language", track.LanguageCode),
		logging.Bool("auto_generated", track.Kind == captionKindASR),
	)
	captions, err := c.FetchTrack(ctx, track.BaseURL)
	if err != nil {
		return media.Captions{}, err
	}
	captions.Language = track.LanguageCode
	if len(captions.Segments) == 0 {
		return media.Captions{}, acquisition.ErrNotAvailable
	}
	return captions, nil
}

// FetchTrack downloads and parses one caption track.
func (c *Client) FetchTrack(ctx context.Context, baseURL string) (media.Captions, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return media.Captions{}, wrap("fast_path", "build caption request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return media.Captions{}, wrap("fast_path", "fetch captions", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return media.Captions{}, wrap("fast_path", "fetch captions", &httpStatusError{StatusCode: resp.StatusCode})
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCaptionBytes))
	if err != nil {
		return media.Captions{}, wrap("fast_path", "read captions", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return media.Captions{}, acquisition.ErrNotAvailable
	}
	captions, err := ParseCaptions(body)
	if err != nil {
		return media.Captions{}, err
	}
	return captions, nil
}

// SelectTrack picks a caption track. Preferred languages are tried in
// order with manual tracks ahead of auto-generated ones; after that any
// manual track wins over any auto-generated track.
func SelectTrack(tracks []ytdl.CaptionTrack, languages []string) (ytdl.CaptionTrack, bool) {
	if len(tracks) == 0 {
		return ytdl.CaptionTrack{}, false
	}
	for _, lang := range languages {
		for _, wantASR := range []bool{false, true} {
			for _, track := range tracks {
				if (track.Kind == captionKindASR) != wantASR {
					continue
				}
				if language.Matches(track.LanguageCode, lang) {
					return track, true
				}
			}
		}
	}
	for _, track := range tracks {
		if track.Kind != captionKindASR {
			return track, true
		}
	}
	return tracks[0], true
}

// timedText is the srv3 format: <timedtext><body><p t="ms" d="ms">.
type timedText struct {
	XMLName    xml.Name        `xml:"timedtext"`
	Paragraphs []timedTextPara `xml:"body>p"`
}

type timedTextPara struct {
	Start    int64          `xml:"t,attr"`
	Duration int64          `xml:"d,attr"`
	Text     string         `xml:",chardata"`
	Spans    []timedTextRun `xml:"s"`
}

type timedTextRun struct {
	Text string `xml:",chardata"`
}

// legacyTranscript is the default format: <transcript><text start="s" dur="s">.
type legacyTranscript struct {
	XMLName xml.Name         `xml:"transcript"`
	Lines   []legacyTextLine `xml:"text"`
}

type legacyTextLine struct {
	Start    string `xml:"start,attr"`
	Duration string `xml:"dur,attr"`
	Text     string `xml:",chardata"`
}

// ParseCaptions decodes either timed-text XML dialect into segments. Empty
// lines are dropped; entity and whitespace cleanup happens later during
// normalization.
func ParseCaptions(data []byte) (media.Captions, error) {
	var root struct {
		XMLName xml.Name
	}
	if err := xml.Unmarshal(data, &root); err != nil {
		return media.Captions{}, parseError(fmt.Errorf("decode caption xml: %w", err))
	}
	switch root.XMLName.Local {
	case "timedtext":
		var doc timedText
		if err := xml.Unmarshal(data, &doc); err != nil {
			return media.Captions{}, parseError(fmt.Errorf("decode timedtext: %w", err))
		}
		segments := make([]media.Segment, 0, len(doc.Paragraphs))
		for _, p := range doc.Paragraphs {
			text := p.Text
			if len(p.Spans) > 0 {
				var b strings.Builder
				for _, span := range p.Spans {
					b.WriteString(span.Text)
				}
				text = b.String()
			}
			if strings.TrimSpace(text) == "" {
				continue
			}
			segments = append(segments, media.Segment{
				Offset:   time.Duration(p.Start) * time.Millisecond,
				Duration: time.Duration(p.Duration) * time.Millisecond,
				Text:     text,
			})
		}
		return media.Captions{Segments: segments}, nil
	case "transcript":
		var doc legacyTranscript
		if err := xml.Unmarshal(data, &doc); err != nil {
			return media.Captions{}, parseError(fmt.Errorf("decode transcript: %w", err))
		}
		segments := make([]media.Segment, 0, len(doc.Lines))
		for _, line := range doc.Lines {
			if strings.TrimSpace(line.Text) == "" {
				continue
			}
			segments = append(segments, media.Segment{
				Offset:   parseSeconds(line.Start),
				Duration: parseSeconds(line.Duration),
				Text:     line.Text,
			})
		}
		return media.Captions{Segments: segments}, nil
	default:
		return media.Captions{}, parseError(fmt.Errorf("unsupported caption document <%s>", root.XMLName.Local))
	}
}

func parseSeconds(value string) time.Duration {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func parseError(err error) error {
	return services.Wrap(services.KindInternal, "fast_path", "parse captions", "", err)
}
