package search

import (
	"context"
	"time"

	"sage/internal/media"
)

// Filters narrow the candidate set. Backends apply them before their own
// truncation and the merger applies them again to the union.
type Filters = media.Filter

// Query is one search request.
type Query struct {
	Text    string
	Limit   int
	Filters Filters
}

// Document is the descriptive payload of a candidate.
type Document struct {
	VideoID     int64
	SourceID    string
	URL         string
	Title       string
	Channel     string
	PublishedAt time.Time
	IngestedAt  time.Time
	Tags        []string
	Snippet     string
}

// Candidate is one backend result with its raw, backend-specific score.
type Candidate struct {
	Document
	Score float64
}

// Backend is a ranked retrieval source. It returns at most limit candidates
// that pass filters. Scores need only be comparable within one call.
type Backend interface {
	Search(ctx context.Context, text string, limit int, filters Filters) ([]Candidate, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, text string, limit int, filters Filters) ([]Candidate, error)

// Search calls f.
func (f BackendFunc) Search(ctx context.Context, text string, limit int, filters Filters) ([]Candidate, error) {
	return f(ctx, text, limit, filters)
}

// Hit is a merged result.
type Hit struct {
	Document
	// Score is the weighted combination of the normalized sub-scores.
	Score float64
	// KeywordScore and SemanticScore are the normalized sub-scores in [0,1].
	// A backend that did not return the hit contributes 0.
	KeywordScore  float64
	SemanticScore float64
	// RawKeyword and RawSemantic are the scores as the backends reported them.
	RawKeyword  float64
	RawSemantic float64
	InKeyword   bool
	InSemantic  bool
}
