package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"sage/internal/media"
)

// Save writes the video, transcript, and optional summary in one transaction
// and indexes them for keyword search. Every failure is a storage_failure.
func (s *Store) Save(ctx context.Context, rec Record) (media.Stored, error) {
	if s == nil || s.db == nil {
		return media.Stored{}, storageError("save", "store is not open", nil)
	}
	sourceID := strings.TrimSpace(rec.Metadata.SourceID)
	if sourceID == "" {
		return media.Stored{}, storageError("save", "source identifier is empty", nil)
	}
	ingestedAt := rec.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = s.now()
	}

	var keywords []string
	if rec.Summary != nil {
		keywords = rec.Summary.Keywords
	}
	tags := mergeTags(rec.Tags, keywords)
	tagsJSON, err := encodeStrings(tags)
	if err != nil {
		return media.Stored{}, storageError("save", "encode tags", err)
	}
	segmentsJSON, err := encodeSegments(rec.Transcript.Segments)
	if err != nil {
		return media.Stored{}, storageError("save", "encode segments", err)
	}
	text := rec.Transcript.View(rec.KeepTimestamps)

	var stored media.Stored
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		stored = media.Stored{}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO videos (source_id, url, title, channel, channel_id, published_at, duration_seconds, tags_json, ingested_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sourceID,
			nullableString(rec.Metadata.URL),
			nullableString(rec.Metadata.Title),
			nullableString(rec.Metadata.Owner),
			nullableString(rec.Metadata.ChannelID),
			nullableTime(rec.Metadata.PublishedAt),
			rec.Metadata.Duration.Seconds(),
			tagsJSON,
			nullableTime(ingestedAt),
		)
		if err != nil {
			return fmt.Errorf("insert video: %w", err)
		}
		if stored.VideoID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("video id: %w", err)
		}

		res, err = tx.ExecContext(ctx,
			`INSERT INTO transcripts (video_id, text, segments_json, path, confidence, word_count, language)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			stored.VideoID,
			text,
			segmentsJSON,
			string(rec.Transcript.Path),
			nullableFloat(rec.Transcript.Confidence),
			rec.Transcript.WordCount,
			nullableString(rec.Transcript.Language),
		)
		if err != nil {
			return fmt.Errorf("insert transcript: %w", err)
		}
		if stored.TranscriptID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("transcript id: %w", err)
		}

		summaryText := ""
		if rec.Summary != nil {
			summaryText = rec.Summary.Text
			if stored.SummaryID, err = insertSummary(ctx, tx, stored.VideoID, rec.Summary); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO video_search (rowid, title, channel, summary, transcript, tags) VALUES (?, ?, ?, ?, ?, ?)`,
			stored.VideoID,
			rec.Metadata.Title,
			rec.Metadata.Owner,
			summaryText,
			rec.Transcript.PlainText(),
			strings.Join(tags, " "),
		); err != nil {
			return fmt.Errorf("index video: %w", err)
		}
		return nil
	})
	if err != nil {
		return media.Stored{}, storageError("save", "persist ingestion", err)
	}
	return stored, nil
}

func insertSummary(ctx context.Context, tx *sql.Tx, videoID int64, summary *media.Summary) (int64, error) {
	lists := [][]string{summary.Topics, summary.Speakers, summary.Takeaways, summary.Keywords}
	encoded := make([]any, len(lists))
	for i, list := range lists {
		value, err := encodeStrings(list)
		if err != nil {
			return 0, fmt.Errorf("encode summary lists: %w", err)
		}
		encoded[i] = value
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO summaries (video_id, text, topics_json, speakers_json, takeaways_json, keywords_json, model, cost, latency_ms, word_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		videoID,
		summary.Text,
		encoded[0],
		encoded[1],
		encoded[2],
		encoded[3],
		nullableString(summary.Model),
		summary.Cost,
		summary.Latency.Milliseconds(),
		summary.WordCount,
	)
	if err != nil {
		return 0, fmt.Errorf("insert summary: %w", err)
	}
	return res.LastInsertId()
}

// Get returns the stored entry for a video row.
func (s *Store) Get(ctx context.Context, videoID int64) (Entry, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+videoColumns+" FROM videos v WHERE v.id = ?", videoID)
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %d", ErrNotFound, videoID)
	}
	if err != nil {
		return Entry{}, storageError("get", "load video", err)
	}
	return s.loadEntry(ctx, video)
}

// Find resolves ref as a numeric row ID or as a source identifier. For a
// source identifier the most recent ingestion wins.
func (s *Store) Find(ctx context.Context, ref string) (Entry, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil && id > 0 {
		return s.Get(ctx, id)
	}
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT "+videoColumns+" FROM videos v WHERE v.source_id = ? ORDER BY v.ingested_at DESC, v.id DESC LIMIT 1", ref)
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return Entry{}, storageError("find", "load video", err)
	}
	return s.loadEntry(ctx, video)
}

func (s *Store) loadEntry(ctx context.Context, video Video) (Entry, error) {
	entry := Entry{Video: video}

	var (
		segments   sql.NullString
		path       string
		confidence sql.NullFloat64
		language   sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, text, segments_json, path, confidence, word_count, language
		 FROM transcripts WHERE video_id = ? ORDER BY id DESC LIMIT 1`, video.ID,
	).Scan(&entry.TranscriptID, &entry.Transcript.Text, &segments, &path, &confidence, &entry.Transcript.WordCount, &language)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Entry{}, storageError("get", "load transcript", err)
	}
	entry.Transcript.Segments = decodeSegments(segments)
	entry.Transcript.Path = media.Path(path)
	entry.Transcript.Language = language.String
	if confidence.Valid {
		value := confidence.Float64
		entry.Transcript.Confidence = &value
	}

	var (
		summary                              media.Summary
		topics, speakers, takeaways, keyword sql.NullString
		model                                sql.NullString
		latencyMS                            int64
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT id, text, topics_json, speakers_json, takeaways_json, keywords_json, model, cost, latency_ms, word_count
		 FROM summaries WHERE video_id = ? ORDER BY id DESC LIMIT 1`, video.ID,
	).Scan(&entry.SummaryID, &summary.Text, &topics, &speakers, &takeaways, &keyword, &model, &summary.Cost, &latencyMS, &summary.WordCount)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return Entry{}, storageError("get", "load summary", err)
	default:
		summary.Topics = decodeStrings(topics)
		summary.Speakers = decodeStrings(speakers)
		summary.Takeaways = decodeStrings(takeaways)
		summary.Keywords = decodeStrings(keyword)
		summary.Model = model.String
		summary.Latency = msDuration(latencyMS)
		entry.Summary = &summary
	}
	return entry, nil
}

// Recent lists the newest ingestions first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Video, error) {
	if limit <= 0 {
		limit = 20
	}
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+videoColumns+" FROM videos v ORDER BY v.ingested_at DESC, v.id DESC LIMIT ?", limit)
	if err != nil {
		return nil, storageError("recent", "list videos", err)
	}
	defer rows.Close()

	var videos []Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, storageError("recent", "scan video", err)
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("recent", "iterate videos", err)
	}
	return videos, nil
}

// Counts reports row totals for status output.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	ctx = ensureContext(ctx)
	var c Counts
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(1) FROM videos),
		(SELECT COUNT(1) FROM transcripts),
		(SELECT COUNT(1) FROM summaries),
		(SELECT COUNT(1) FROM transcripts WHERE path = ?),
		(SELECT COUNT(1) FROM transcripts WHERE path = ?)`,
		string(media.PathFast), string(media.PathSlow),
	).Scan(&c.Videos, &c.Transcripts, &c.Summaries, &c.FastPath, &c.SlowPath)
	if err != nil {
		return Counts{}, storageError("counts", "count rows", err)
	}
	return c, nil
}
