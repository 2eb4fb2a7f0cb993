package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sage/internal/media"
	"sage/internal/services"
	"sage/internal/store"
)

type showJSON struct {
	VideoID     int64        `json:"video_id"`
	SourceID    string       `json:"source_id"`
	URL         string       `json:"url,omitempty"`
	Title       string       `json:"title"`
	Channel     string       `json:"channel,omitempty"`
	PublishedAt string       `json:"published_at,omitempty"`
	Duration    string       `json:"duration,omitempty"`
	IngestedAt  time.Time    `json:"ingested_at"`
	Tags        []string     `json:"tags,omitempty"`
	Path        string       `json:"path"`
	Confidence  *float64     `json:"confidence,omitempty"`
	WordCount   int          `json:"word_count"`
	Language    string       `json:"language,omitempty"`
	Transcript  string       `json:"transcript"`
	Summary     *summaryJSON `json:"summary,omitempty"`
}

type summaryJSON struct {
	Text      string   `json:"text"`
	Topics    []string `json:"topics,omitempty"`
	Speakers  []string `json:"speakers,omitempty"`
	Takeaways []string `json:"takeaways,omitempty"`
	Keywords  []string `json:"keywords,omitempty"`
	Model     string   `json:"model,omitempty"`
	Cost      float64  `json:"cost,omitempty"`
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var (
		transcript bool
		timestamps bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "show <video-id|source-id>",
		Short: "Display a stored video with its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := ctx.openEngine(nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			entry, err := eng.Find(cmd.Context(), args[0])
			if errors.Is(err, store.ErrNotFound) {
				return services.Wrap(services.KindInvalidInput, "", "show", fmt.Sprintf("no stored video matches %q", args[0]), err)
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, showEntryJSON(entry, timestamps))
			}
			renderEntry(cmd.OutOrStdout(), entry, transcript, timestamps, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&transcript, "transcript", false, "Print the full transcript")
	cmd.Flags().BoolVar(&timestamps, "timestamps", false, "Render the transcript with [mm:ss] timestamps when available")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func showEntryJSON(entry store.Entry, timestamps bool) showJSON {
	v := entry.Video
	out := showJSON{
		VideoID:    v.ID,
		SourceID:   v.SourceID,
		URL:        v.URL,
		Title:      v.Title,
		Channel:    v.Channel,
		IngestedAt: v.IngestedAt,
		Tags:       v.Tags,
		Path:       string(entry.Transcript.Path),
		Confidence: entry.Transcript.Confidence,
		WordCount:  entry.Transcript.WordCount,
		Language:   entry.Transcript.Language,
		Transcript: entry.Transcript.View(timestamps),
	}
	if !v.PublishedAt.IsZero() {
		out.PublishedAt = v.PublishedAt.Format(dateLayout)
	}
	if v.Duration > 0 {
		out.Duration = media.FormatOffset(v.Duration)
	}
	if s := entry.Summary; s != nil {
		out.Summary = &summaryJSON{
			Text:      s.Text,
			Topics:    s.Topics,
			Speakers:  s.Speakers,
			Takeaways: s.Takeaways,
			Keywords:  s.Keywords,
			Model:     s.Model,
			Cost:      s.Cost,
		}
	}
	return out
}

func renderEntry(out io.Writer, entry store.Entry, transcript, timestamps, colorize bool) {
	v := entry.Video
	for _, line := range renderSectionHeader(v.Title, colorize) {
		fmt.Fprintln(out, line)
	}
	field := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		fmt.Fprintf(out, "%s%-*s %s\n", statusIndent, statusLabelWidth, label+":", value)
	}
	field("ID", strconv.FormatInt(v.ID, 10))
	field("Source", v.SourceID)
	field("URL", v.URL)
	field("Channel", v.Channel)
	if !v.PublishedAt.IsZero() {
		field("Published", v.PublishedAt.Format(dateLayout))
	}
	if v.Duration > 0 {
		field("Duration", media.FormatOffset(v.Duration))
	}
	field("Ingested", v.IngestedAt.Local().Format("2006-01-02 15:04"))
	path := string(entry.Transcript.Path)
	if c := entry.Transcript.Confidence; c != nil {
		path = fmt.Sprintf("%s (confidence %.0f%%)", path, *c*100)
	}
	field("Transcript", path)
	field("Words", strconv.Itoa(entry.Transcript.WordCount))
	field("Tags", strings.Join(v.Tags, ", "))

	if s := entry.Summary; s != nil {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Summary", colorize) {
			fmt.Fprintln(out, line)
		}
		fmt.Fprintln(out, s.Text)
		renderList(out, "Topics", s.Topics)
		renderList(out, "Speakers", s.Speakers)
		renderList(out, "Key takeaways", s.Takeaways)
	}

	if transcript {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Transcript", colorize) {
			fmt.Fprintln(out, line)
		}
		fmt.Fprintln(out, entry.Transcript.View(timestamps))
	}
}

func renderList(out io.Writer, title string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s:\n", title)
	for _, value := range values {
		fmt.Fprintf(out, "%s- %s\n", statusIndent, value)
	}
}
