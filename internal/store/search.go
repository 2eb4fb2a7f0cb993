package store

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"sage/internal/media"
)

const defaultKeywordLimit = 20

// KeywordSearch ranks stored videos against query using FTS5 bm25. Title and
// summary matches weigh more than transcript matches. The filter is applied
// in the query so limit counts only matching videos.
func (s *Store) KeywordSearch(ctx context.Context, query string, limit int, filter media.Filter) ([]KeywordHit, error) {
	match := escapeFTS5Query(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultKeywordLimit
	}
	ctx = ensureContext(ctx)

	where, args := filterClause(filter)
	args = append([]any{match}, args...)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+videoColumns+`,
		       bm25(video_search, 4.0, 2.0, 3.0, 1.0, 2.0) AS rank,
		       snippet(video_search, 3, '[', ']', '...', 16)
		FROM video_search
		JOIN videos v ON v.id = video_search.rowid
		WHERE video_search MATCH ?`+where+`
		ORDER BY rank, v.id
		LIMIT ?`, args...)
	if err != nil {
		return nil, storageError("keyword_search", "query index", err)
	}
	defer rows.Close()

	var hits []KeywordHit
	for rows.Next() {
		var (
			rank    float64
			snippet sql.NullString
		)
		video, err := scanVideo(rows, &rank, &snippet)
		if err != nil {
			return nil, storageError("keyword_search", "scan hit", err)
		}
		// bm25 is negative with lower meaning better.
		hits = append(hits, KeywordHit{Video: video, Score: -rank, Snippet: snippet.String})
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("keyword_search", "iterate hits", err)
	}
	return hits, nil
}

// filterClause renders filter as AND-prefixed conditions on the videos
// alias v. SQLite's lower() folds ASCII only, so a non-ASCII channel needle
// is left to the caller's own filtering.
func filterClause(filter media.Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if needle := filter.ChannelNeedle(); needle != "" && isASCII(needle) {
		clauses = append(clauses, "instr(lower(coalesce(v.channel, '')), ?) > 0")
		args = append(args, needle)
	}
	if !filter.PublishedAfter.IsZero() {
		clauses = append(clauses, "(v.published_at IS NULL OR julianday(v.published_at) >= julianday(?))")
		args = append(args, filter.PublishedAfter.UTC().Format(time.RFC3339Nano))
	}
	if !filter.PublishedBefore.IsZero() {
		clauses = append(clauses, "(v.published_at IS NULL OR julianday(v.published_at) <= julianday(?))")
		args = append(args, filter.PublishedBefore.UTC().Format(time.RFC3339Nano))
	}
	if tags := filter.TagSet(); len(tags) > 0 {
		sorted := make([]string, 0, len(tags))
		for tag := range tags {
			sorted = append(sorted, tag)
		}
		sort.Strings(sorted)
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(sorted)), ", ")
		clauses = append(clauses,
			"EXISTS (SELECT 1 FROM json_each(coalesce(v.tags_json, '[]')) AS t WHERE lower(t.value) IN ("+placeholders+"))")
		for _, tag := range sorted {
			args = append(args, tag)
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "\n\t\t  AND " + strings.Join(clauses, "\n\t\t  AND "), args
}

func isASCII(value string) bool {
	for i := 0; i < len(value); i++ {
		if value[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func splitTerms(query string) []string {
	return strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// escapeFTS5Query quotes every term so FTS5 operators in user input are
// matched literally, and ORs them together.
func escapeFTS5Query(query string) string {
	terms := splitTerms(query)
	escaped := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		escaped = append(escaped, "\""+strings.ReplaceAll(term, "\"", "\"\"")+"\"")
	}
	if len(escaped) == 0 {
		return ""
	}
	return strings.Join(escaped, " OR ")
}
