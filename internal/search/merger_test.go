package search_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"sage/internal/search"
	"sage/internal/services"
)

var base = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func cand(id int64, score float64, ingestedOffset time.Duration) search.Candidate {
	return search.Candidate{
		Document: search.Document{VideoID: id, IngestedAt: base.Add(ingestedOffset)},
		Score:    score,
	}
}

// ranked behaves like an index: it filters, then keeps the best limit
// candidates in the order given.
func ranked(cands ...search.Candidate) search.Backend {
	return search.BackendFunc(func(_ context.Context, _ string, limit int, filters search.Filters) ([]search.Candidate, error) {
		var out []search.Candidate
		for _, c := range cands {
			if filters.Match(c.Channel, c.PublishedAt, c.Tags) {
				out = append(out, c)
			}
		}
		if len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	})
}

func static(cands ...search.Candidate) search.Backend {
	return search.BackendFunc(func(context.Context, string, int, search.Filters) ([]search.Candidate, error) {
		return cands, nil
	})
}

func failing(err error) search.Backend {
	return search.BackendFunc(func(context.Context, string, int, search.Filters) ([]search.Candidate, error) {
		return nil, err
	})
}

func ids(hits []search.Hit) []int64 {
	out := make([]int64, len(hits))
	for i, h := range hits {
		out[i] = h.VideoID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestMergeMissingSubscoreIsZero(t *testing.T) {
	// A appears only in keyword results, B in both.
	hits := search.Merge(
		[]search.Candidate{cand(1, 12, 0), cand(2, 4, 0)},
		[]search.Candidate{cand(2, 0.9, 0), cand(3, 0.3, 0)},
		search.Filters{}, 0.5, 0.5,
	)
	byID := map[int64]search.Hit{}
	for _, h := range hits {
		byID[h.VideoID] = h
	}
	if !approx(byID[1].KeywordScore, 1) || byID[1].SemanticScore != 0 || byID[1].InSemantic {
		t.Fatalf("unexpected hit 1: %+v", byID[1])
	}
	if !approx(byID[2].Score, 0.5*0+0.5*1) {
		t.Fatalf("unexpected hit 2 score: %v", byID[2].Score)
	}
	if !approx(byID[3].Score, 0) {
		t.Fatalf("unexpected hit 3 score: %v", byID[3].Score)
	}
	if byID[2].RawKeyword != 4 || byID[2].RawSemantic != 0.9 {
		t.Fatalf("raw scores not kept: %+v", byID[2])
	}
}

func TestMergeSingleCandidateNormalizesToOne(t *testing.T) {
	hits := search.Merge([]search.Candidate{cand(7, -3.2, 0)}, nil, search.Filters{}, 0.5, 0.5)
	if len(hits) != 1 || !approx(hits[0].KeywordScore, 1) || !approx(hits[0].Score, 0.5) {
		t.Fatalf("unexpected hits %+v", hits)
	}
}

func TestMergeEqualScoresNormalizeToOne(t *testing.T) {
	hits := search.Merge(nil, []search.Candidate{cand(1, 0.4, 0), cand(2, 0.4, time.Hour)}, search.Filters{}, 0.5, 0.5)
	for _, h := range hits {
		if !approx(h.SemanticScore, 1) {
			t.Fatalf("expected 1.0, got %v", h.SemanticScore)
		}
	}
	// Equal combined scores rank the newer ingestion first.
	if !equalIDs(ids(hits), []int64{2, 1}) {
		t.Fatalf("expected recency tie-break, got %v", ids(hits))
	}
}

func TestMergeScenarioCoordinationStrategies(t *testing.T) {
	// Keyword: A=0.9 only. Semantic: A=0.4, B=0.7.
	// Keyword normalizes A to 1; semantic spans [0.4,0.7] so A=0, B=1.
	// Both combine to 0.5 and the newer ingestion (A) ranks first.
	a := cand(1, 0.9, time.Hour)
	hits := search.Merge(
		[]search.Candidate{a},
		[]search.Candidate{cand(1, 0.4, time.Hour), cand(2, 0.7, 0)},
		search.Filters{}, 0.5, 0.5,
	)
	if !equalIDs(ids(hits), []int64{1, 2}) {
		t.Fatalf("expected [A B], got %v", ids(hits))
	}
	if !approx(hits[0].Score, 0.5) || !approx(hits[1].Score, 0.5) {
		t.Fatalf("unexpected scores %v %v", hits[0].Score, hits[1].Score)
	}
}

func TestMergeIdenticalSetsReproduceRanking(t *testing.T) {
	set := []search.Candidate{cand(1, 0.2, 0), cand(2, 0.9, 0), cand(3, 0.5, 0)}
	single := search.Merge(set, nil, search.Filters{}, 1, 0)
	both := search.Merge(set, set, search.Filters{}, 0.5, 0.5)
	if !equalIDs(ids(single), ids(both)) {
		t.Fatalf("rankings differ: %v vs %v", ids(single), ids(both))
	}
	if !equalIDs(ids(both), []int64{2, 3, 1}) {
		t.Fatalf("unexpected ranking %v", ids(both))
	}
}

func TestMergeFiltersBeforeNormalization(t *testing.T) {
	inRange := base.Add(-24 * time.Hour)
	outOfRange := base.Add(-400 * 24 * time.Hour)
	keep := search.Candidate{Document: search.Document{VideoID: 1, Channel: "Distributed Talks", PublishedAt: inRange, Tags: []string{"AI"}}, Score: 1}
	dropChannel := search.Candidate{Document: search.Document{VideoID: 2, Channel: "Cooking", PublishedAt: inRange, Tags: []string{"ai"}}, Score: 10}
	dropDate := search.Candidate{Document: search.Document{VideoID: 3, Channel: "talks daily", PublishedAt: outOfRange, Tags: []string{"ai"}}, Score: 5}
	dropTag := search.Candidate{Document: search.Document{VideoID: 4, Channel: "Talks", PublishedAt: inRange, Tags: []string{"food"}}, Score: 3}
	undated := search.Candidate{Document: search.Document{VideoID: 5, Channel: "Talks", Tags: []string{"ai"}}, Score: 2}

	hits := search.Merge([]search.Candidate{keep, dropChannel, dropDate, dropTag, undated}, nil, search.Filters{
		Channel:         "talks",
		PublishedAfter:  base.Add(-30 * 24 * time.Hour),
		PublishedBefore: base,
		Tags:            []string{"ai"},
	}, 1, 0)

	if !equalIDs(ids(hits), []int64{5, 1}) {
		t.Fatalf("unexpected filtered ranking %v", ids(hits))
	}
	// Normalization spans only the surviving candidates.
	if !approx(hits[0].KeywordScore, 1) || !approx(hits[1].KeywordScore, 0) {
		t.Fatalf("unexpected normalized scores %+v", hits)
	}
}

func TestSearchLimitAppliesAfterFilter(t *testing.T) {
	var kw []search.Candidate
	for i := int64(1); i <= 6; i++ {
		channel := "Other"
		if i%2 == 0 {
			channel = "Talks"
		}
		kw = append(kw, search.Candidate{Document: search.Document{VideoID: i, Channel: channel}, Score: float64(10 - i)})
	}
	m := search.NewMerger(static(kw...), nil, search.Options{})
	hits, err := m.Search(context.Background(), search.Query{Text: "x", Limit: 2, Filters: search.Filters{Channel: "talks"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !equalIDs(ids(hits), []int64{2, 4}) {
		t.Fatalf("expected [2 4], got %v", ids(hits))
	}
}

func TestSearchFindsFilteredMatchBeyondCandidateCutoff(t *testing.T) {
	var kw, sem []search.Candidate
	for i := int64(1); i <= 50; i++ {
		channel := "Other Channel"
		if i == 40 {
			channel = "Target Channel"
		}
		c := search.Candidate{Document: search.Document{VideoID: i, Channel: channel}, Score: float64(100 - i)}
		kw = append(kw, c)
		sem = append(sem, c)
	}
	m := search.NewMerger(ranked(kw...), ranked(sem...), search.Options{})
	hits, err := m.Search(context.Background(), search.Query{Text: "x", Limit: 10, Filters: search.Filters{Channel: "target"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !equalIDs(ids(hits), []int64{40}) {
		t.Fatalf("expected [40], got %v", ids(hits))
	}
	if !approx(hits[0].Score, 1) {
		t.Fatalf("expected a lone match to normalize to 1, got %v", hits[0].Score)
	}
}

func TestSearchRequestsCandidateFactor(t *testing.T) {
	var gotLimit int
	kw := search.BackendFunc(func(_ context.Context, _ string, limit int, _ search.Filters) ([]search.Candidate, error) {
		gotLimit = limit
		return nil, nil
	})
	m := search.NewMerger(kw, nil, search.Options{CandidateFactor: 4})
	if _, err := m.Search(context.Background(), search.Query{Text: "x", Limit: 5}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotLimit != 20 {
		t.Fatalf("expected candidate limit 20, got %d", gotLimit)
	}
}

func TestSearchDegradesWhenOneBackendFails(t *testing.T) {
	m := search.NewMerger(failing(errors.New("fts down")), static(cand(1, 0.3, 0), cand(2, 0.8, 0)), search.Options{})
	hits, err := m.Search(context.Background(), search.Query{Text: "x"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !equalIDs(ids(hits), []int64{2, 1}) {
		t.Fatalf("expected semantic-only ranking, got %v", ids(hits))
	}
}

func TestSearchFailsWhenAllBackendsFail(t *testing.T) {
	boom := services.Wrap(services.KindStorageFailure, "search", "query", "", errors.New("boom"))
	m := search.NewMerger(failing(boom), failing(errors.New("embed down")), search.Options{})
	_, err := m.Search(context.Background(), search.Query{Text: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if services.KindOf(err) != services.KindStorageFailure {
		t.Fatalf("expected storage_failure, got %v", err)
	}
}

func TestSearchWithoutSemanticBackendIsKeywordOnly(t *testing.T) {
	m := search.NewMerger(static(cand(1, 3, 0), cand(2, 1, 0)), search.SemanticBackend(nil), search.Options{})
	hits, err := m.Search(context.Background(), search.Query{Text: "x"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !approx(hits[0].Score, 1) || !approx(hits[1].Score, 0) {
		t.Fatalf("expected full keyword weight, got %+v", hits)
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	m := search.NewMerger(static(), nil, search.Options{})
	_, err := m.Search(context.Background(), search.Query{Text: "   "})
	if services.KindOf(err) != services.KindInvalidInput {
		t.Fatalf("expected invalid_input, got %v", err)
	}
}
