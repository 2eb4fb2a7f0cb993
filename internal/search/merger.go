package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"sage/internal/logging"
	"sage/internal/services"
)

const (
	DefaultKeywordWeight   = 0.5
	DefaultSemanticWeight  = 0.5
	DefaultLimit           = 10
	DefaultCandidateFactor = 3
)

// Options tune a Merger.
type Options struct {
	KeywordWeight   float64
	SemanticWeight  float64
	DefaultLimit    int
	CandidateFactor int
	Logger          *slog.Logger
}

// Merger combines keyword and semantic retrieval into one ranking.
type Merger struct {
	keyword  Backend
	semantic Backend
	opts     Options
	logger   *slog.Logger
}

// NewMerger constructs a merger. semantic may be nil, in which case results
// come from the keyword backend alone.
func NewMerger(keyword, semantic Backend, opts Options) *Merger {
	if opts.KeywordWeight < 0 || opts.SemanticWeight < 0 || opts.KeywordWeight+opts.SemanticWeight == 0 {
		opts.KeywordWeight = DefaultKeywordWeight
		opts.SemanticWeight = DefaultSemanticWeight
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultLimit
	}
	if opts.CandidateFactor <= 0 {
		opts.CandidateFactor = DefaultCandidateFactor
	}
	return &Merger{
		keyword:  keyword,
		semantic: semantic,
		opts:     opts,
		logger:   logging.NewComponentLogger(opts.Logger, "search"),
	}
}

type backendResult struct {
	candidates []Candidate
	err        error
}

// Search queries both backends with the filters, unions their candidates
// by video, normalizes each backend's scores over the filtered set, and ranks by the
// weighted sum. Ties go to the more recent ingestion.
func (m *Merger) Search(ctx context.Context, q Query) ([]Hit, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, services.Wrap(services.KindInvalidInput, "search", "query", "query text is empty", services.ErrValidation)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = m.opts.DefaultLimit
	}
	candidateLimit := max(limit*m.opts.CandidateFactor, limit)

	var (
		wg       sync.WaitGroup
		keyword  backendResult
		semantic backendResult
	)
	run := func(b Backend, out *backendResult) {
		defer wg.Done()
		out.candidates, out.err = b.Search(ctx, text, candidateLimit, q.Filters)
	}
	if m.keyword != nil {
		wg.Add(1)
		go run(m.keyword, &keyword)
	}
	if m.semantic != nil {
		wg.Add(1)
		go run(m.semantic, &semantic)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.KindCancelled, "search", "query", "search cancelled", err)
	}

	available := 0
	failed := 0
	var errs []error
	for _, r := range []struct {
		name    string
		backend Backend
		result  *backendResult
	}{
		{"keyword", m.keyword, &keyword},
		{"semantic", m.semantic, &semantic},
	} {
		if r.backend == nil {
			continue
		}
		available++
		if r.result.err == nil {
			continue
		}
		failed++
		errs = append(errs, fmt.Errorf("%s backend: %w", r.name, r.result.err))
		logging.WarnWithContext(m.logger, "search backend failed", "search_backend_failed",
			logging.String("backend", r.name),
			logging.String(logging.FieldErrorKind, string(services.KindOf(r.result.err))),
			logging.Error(r.result.err),
			logging.String(logging.FieldImpact, "results come from the remaining backend"),
		)
		r.result.candidates = nil
	}
	if available == 0 {
		return nil, services.Wrap(services.KindConfiguration, "search", "query", "no search backend configured", services.ErrConfiguration)
	}
	if failed == available {
		return nil, services.Wrap(services.KindOf(errs[0]), "search", "query", "all search backends failed", errors.Join(errs...))
	}

	kwWeight, semWeight := m.opts.KeywordWeight, m.opts.SemanticWeight
	if m.semantic == nil {
		kwWeight, semWeight = 1, 0
	} else if m.keyword == nil {
		kwWeight, semWeight = 0, 1
	}

	hits := Merge(keyword.candidates, semantic.candidates, q.Filters, kwWeight, semWeight)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	m.logger.Debug("search complete",
		logging.String("query", text),
		logging.Int("keyword_candidates", len(keyword.candidates)),
		logging.Int("semantic_candidates", len(semantic.candidates)),
		logging.Int("results", len(hits)),
	)
	return hits, nil
}

// Merge unions keyword and semantic candidates, applies filters, and ranks
// the survivors. It does not truncate.
func Merge(keyword, semantic []Candidate, filters Filters, kwWeight, semWeight float64) []Hit {
	byID := make(map[int64]*Hit)
	var order []int64
	upsert := func(c Candidate) *Hit {
		h, ok := byID[c.VideoID]
		if !ok {
			h = &Hit{Document: c.Document}
			byID[c.VideoID] = h
			order = append(order, c.VideoID)
			return h
		}
		h.Document = mergeDocument(h.Document, c.Document)
		return h
	}
	for _, c := range keyword {
		h := upsert(c)
		if !h.InKeyword || c.Score > h.RawKeyword {
			h.RawKeyword = c.Score
		}
		h.InKeyword = true
	}
	for _, c := range semantic {
		h := upsert(c)
		if !h.InSemantic || c.Score > h.RawSemantic {
			h.RawSemantic = c.Score
		}
		h.InSemantic = true
	}

	hits := make([]Hit, 0, len(order))
	for _, id := range order {
		h := byID[id]
		if filters.Match(h.Channel, h.PublishedAt, h.Tags) {
			hits = append(hits, *h)
		}
	}

	normalize(hits, func(h *Hit) (float64, bool) { return h.RawKeyword, h.InKeyword },
		func(h *Hit, v float64) { h.KeywordScore = v })
	normalize(hits, func(h *Hit) (float64, bool) { return h.RawSemantic, h.InSemantic },
		func(h *Hit, v float64) { h.SemanticScore = v })

	for i := range hits {
		hits[i].Score = kwWeight*hits[i].KeywordScore + semWeight*hits[i].SemanticScore
	}

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.IngestedAt.Equal(b.IngestedAt) {
			return a.IngestedAt.After(b.IngestedAt)
		}
		return a.VideoID < b.VideoID
	})
	return hits
}

// normalize min-max scales the present scores into [0,1]. A single present
// score, or a set of equal scores, maps to 1. Absent scores stay 0.
func normalize(hits []Hit, get func(*Hit) (float64, bool), set func(*Hit, float64)) {
	first := true
	var lo, hi float64
	for i := range hits {
		v, ok := get(&hits[i])
		if !ok {
			continue
		}
		if first {
			lo, hi = v, v
			first = false
			continue
		}
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if first {
		return
	}
	span := hi - lo
	for i := range hits {
		v, ok := get(&hits[i])
		if !ok {
			set(&hits[i], 0)
			continue
		}
		if span == 0 {
			set(&hits[i], 1)
			continue
		}
		set(&hits[i], (v-lo)/span)
	}
}

func mergeDocument(existing, incoming Document) Document {
	if existing.SourceID == "" {
		existing.SourceID = incoming.SourceID
	}
	if existing.URL == "" {
		existing.URL = incoming.URL
	}
	if existing.Title == "" {
		existing.Title = incoming.Title
	}
	if existing.Channel == "" {
		existing.Channel = incoming.Channel
	}
	if existing.PublishedAt.IsZero() {
		existing.PublishedAt = incoming.PublishedAt
	}
	if existing.IngestedAt.IsZero() {
		existing.IngestedAt = incoming.IngestedAt
	}
	if existing.Snippet == "" {
		existing.Snippet = incoming.Snippet
	}
	existing.Tags = mergeTags(existing.Tags, incoming.Tags)
	return existing
}

func mergeTags(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, tag := range append(append([]string(nil), a...), b...) {
		cleaned := strings.TrimSpace(tag)
		key := strings.ToLower(cleaned)
		if cleaned == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, cleaned)
	}
	return out
}
