package search

import (
	"context"

	"sage/internal/memory"
	"sage/internal/store"
)

// KeywordBackend exposes the relational store's full-text index.
func KeywordBackend(s *store.Store) Backend {
	return BackendFunc(func(ctx context.Context, text string, limit int, filters Filters) ([]Candidate, error) {
		hits, err := s.KeywordSearch(ctx, text, limit, filters)
		if err != nil {
			return nil, err
		}
		out := make([]Candidate, len(hits))
		for i, h := range hits {
			out[i] = Candidate{
				Document: Document{
					VideoID:     h.Video.ID,
					SourceID:    h.Video.SourceID,
					URL:         h.Video.URL,
					Title:       h.Video.Title,
					Channel:     h.Video.Channel,
					PublishedAt: h.Video.PublishedAt,
					IngestedAt:  h.Video.IngestedAt,
					Tags:        h.Video.Tags,
					Snippet:     h.Snippet,
				},
				Score: h.Score,
			}
		}
		return out, nil
	})
}

// SemanticBackend exposes semantic memory. It returns nil when m is nil so
// the merger degrades to keyword-only search.
func SemanticBackend(m *memory.Memory) Backend {
	if m == nil {
		return nil
	}
	return BackendFunc(func(ctx context.Context, text string, limit int, filters Filters) ([]Candidate, error) {
		hits, err := m.Search(ctx, text, limit, filters)
		if err != nil {
			return nil, err
		}
		out := make([]Candidate, len(hits))
		for i, h := range hits {
			out[i] = Candidate{
				Document: Document{
					VideoID:     h.Metadata.VideoID,
					SourceID:    h.Metadata.SourceID,
					Title:       h.Metadata.Title,
					Channel:     h.Metadata.Channel,
					PublishedAt: h.Metadata.PublishedAt,
					IngestedAt:  h.Metadata.IngestedAt,
					Tags:        h.Metadata.Tags,
					Snippet:     snippet(h.Text, 160),
				},
				Score: h.Score,
			}
		}
		return out, nil
	})
}

func snippet(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
