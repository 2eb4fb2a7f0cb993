package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sage/internal/search"
	"sage/internal/services"
)

const dateLayout = "2006-01-02"

type searchHitJSON struct {
	Rank          int       `json:"rank"`
	VideoID       int64     `json:"video_id"`
	SourceID      string    `json:"source_id"`
	URL           string    `json:"url,omitempty"`
	Title         string    `json:"title"`
	Channel       string    `json:"channel,omitempty"`
	PublishedAt   string    `json:"published_at,omitempty"`
	IngestedAt    time.Time `json:"ingested_at"`
	Tags          []string  `json:"tags,omitempty"`
	Score         float64   `json:"score"`
	KeywordScore  float64   `json:"keyword_score"`
	SemanticScore float64   `json:"semantic_score"`
	Snippet       string    `json:"snippet,omitempty"`
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var (
		limit      int
		channel    string
		since      string
		until      string
		tags       []string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Search stored transcripts and summaries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := parseSearchFilters(channel, since, until, tags)
			if err != nil {
				return err
			}
			eng, err := ctx.openEngine(nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			query := search.Query{
				Text:    strings.Join(args, " "),
				Limit:   limit,
				Filters: filters,
			}
			hits, err := eng.Search(cmd.Context(), query)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, searchHitsJSON(hits))
			}
			renderSearchHits(cmd.OutOrStdout(), hits, eng.SemanticEnabled())
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum results (defaults to search.default_limit)")
	cmd.Flags().StringVar(&channel, "channel", "", "Only include channels containing this text")
	cmd.Flags().StringVar(&since, "since", "", "Only include videos published on or after YYYY-MM-DD")
	cmd.Flags().StringVar(&until, "until", "", "Only include videos published on or before YYYY-MM-DD")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "Only include videos carrying one of these tags")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	return cmd
}

func parseSearchFilters(channel, since, until string, tags []string) (search.Filters, error) {
	filters := search.Filters{
		Channel: strings.TrimSpace(channel),
		Tags:    tags,
	}
	if since = strings.TrimSpace(since); since != "" {
		t, err := time.Parse(dateLayout, since)
		if err != nil {
			return filters, services.Wrap(services.KindInvalidInput, "search", "since", "expected YYYY-MM-DD", err)
		}
		filters.PublishedAfter = t
	}
	if until = strings.TrimSpace(until); until != "" {
		t, err := time.Parse(dateLayout, until)
		if err != nil {
			return filters, services.Wrap(services.KindInvalidInput, "search", "until", "expected YYYY-MM-DD", err)
		}
		// Inclusive of the whole day.
		filters.PublishedBefore = t.Add(24*time.Hour - time.Nanosecond)
	}
	if !filters.PublishedAfter.IsZero() && !filters.PublishedBefore.IsZero() && filters.PublishedBefore.Before(filters.PublishedAfter) {
		return filters, services.Wrap(services.KindInvalidInput, "search", "dates", "--until is before --since", services.ErrValidation)
	}
	return filters, nil
}

func searchHitsJSON(hits []search.Hit) []searchHitJSON {
	out := make([]searchHitJSON, 0, len(hits))
	for i, hit := range hits {
		entry := searchHitJSON{
			Rank:          i + 1,
			VideoID:       hit.VideoID,
			SourceID:      hit.SourceID,
			URL:           hit.URL,
			Title:         hit.Title,
			Channel:       hit.Channel,
			IngestedAt:    hit.IngestedAt,
			Tags:          hit.Tags,
			Score:         hit.Score,
			KeywordScore:  hit.KeywordScore,
			SemanticScore: hit.SemanticScore,
			Snippet:       hit.Snippet,
		}
		if !hit.PublishedAt.IsZero() {
			entry.PublishedAt = hit.PublishedAt.Format(dateLayout)
		}
		out = append(out, entry)
	}
	return out
}

func renderSearchHits(out io.Writer, hits []search.Hit, semantic bool) {
	if len(hits) == 0 {
		fmt.Fprintln(out, "No matching videos")
		return
	}
	columns := []column{
		{header: "#", align: alignRight},
		{header: "Score", align: alignRight},
		{header: "Keyword", align: alignRight},
	}
	if semantic {
		columns = append(columns, column{header: "Semantic", align: alignRight})
	}
	columns = append(columns,
		column{header: "Title", maxWidth: 48},
		column{header: "Channel", maxWidth: 24},
		column{header: "Published"},
		column{header: "Ref"},
	)
	rows := make([][]string, 0, len(hits))
	for i, hit := range hits {
		row := []string{
			strconv.Itoa(i + 1),
			formatScore(hit.Score),
			formatSubScore(hit.KeywordScore, hit.InKeyword),
		}
		if semantic {
			row = append(row, formatSubScore(hit.SemanticScore, hit.InSemantic))
		}
		published := ""
		if !hit.PublishedAt.IsZero() {
			published = hit.PublishedAt.Format(dateLayout)
		}
		row = append(row, hit.Title, hit.Channel, published, strconv.FormatInt(hit.VideoID, 10))
		rows = append(rows, row)
	}
	fmt.Fprintln(out, renderTable(columns, rows))
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 3, 64)
}

func formatSubScore(score float64, present bool) string {
	if !present {
		return "-"
	}
	return formatScore(score)
}
