package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"sage/internal/logging"
	"sage/internal/media"
	"sage/internal/services"
)

const (
	defaultSearchLimit = 10
	maxMemoryTextRunes = 4000
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS memories (
    id TEXT PRIMARY KEY,
    video_id INTEGER,
    text TEXT NOT NULL,
    metadata_json TEXT NOT NULL,
    model TEXT NOT NULL,
    dimension INTEGER NOT NULL,
    embedding BLOB NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_model ON memories(model);
CREATE INDEX IF NOT EXISTS idx_memories_video_id ON memories(video_id);
`

// Metadata is stored alongside each memory and returned with search hits so
// callers can filter without consulting the relational store.
type Metadata struct {
	VideoID     int64     `json:"video_id"`
	SourceID    string    `json:"source_id"`
	Title       string    `json:"title,omitempty"`
	Channel     string    `json:"channel,omitempty"`
	PublishedAt time.Time `json:"published_at,omitzero"`
	Tags        []string  `json:"tags,omitempty"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// Hit is one semantic match. Score is cosine similarity in [-1,1].
type Hit struct {
	ID       string
	Text     string
	Metadata Metadata
	Score    float64
}

// Memory is a semantic index over ingested content.
type Memory struct {
	db       *sql.DB
	embedder Embedder
	logger   *slog.Logger
	now      func() time.Time
}

// Open connects to the memory database at path.
func Open(path string, embedder Embedder, logger *slog.Logger) (*Memory, error) {
	if embedder == nil {
		return nil, errors.New("memory: embedder is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure memory directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create memory schema: %w", err)
	}
	return &Memory{
		db:       db,
		embedder: embedder,
		logger:   logging.NewComponentLogger(logger, "memory"),
		now:      time.Now,
	}, nil
}

// Close releases the database.
func (m *Memory) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Add embeds text and stores it with meta. It returns the new memory ID.
func (m *Memory) Add(ctx context.Context, text string, meta Metadata) (string, error) {
	text = clip(strings.TrimSpace(text), maxMemoryTextRunes)
	if text == "" {
		return "", services.Wrap(services.KindInvalidInput, stageName, "add", "memory text is empty", nil)
	}
	vectors, err := m.embedder.Embed(ctx, []string{text})
	if err != nil {
		return "", err
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return "", classify("add", &malformedResponseError{err: errors.New("empty embedding")})
	}
	if meta.IngestedAt.IsZero() {
		meta.IngestedAt = m.now()
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", services.Wrap(services.KindStorageFailure, stageName, "add", "encode metadata", err)
	}

	id := uuid.NewString()
	_, err = m.db.ExecContext(ctx,
		`INSERT INTO memories (id, video_id, text, metadata_json, model, dimension, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, meta.VideoID, text, string(metaJSON), m.embedder.Model(), len(vectors[0]),
		encodeVector(vectors[0]), m.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", services.Wrap(services.KindStorageFailure, stageName, "add", "insert memory", err)
	}
	m.logger.Debug("memory stored",
		logging.String("memory_id", id),
		logging.Int64("video_id", meta.VideoID),
		logging.Int("dimension", len(vectors[0])),
	)
	return id, nil
}

// Search embeds query and returns the closest memories by cosine similarity.
// Memories that fail filter are skipped before the limit is applied.
func (m *Memory) Search(ctx context.Context, query string, limit int, filter media.Filter) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	vectors, err := m.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, classify("search", &malformedResponseError{err: errors.New("empty query embedding")})
	}
	queryVec := vectors[0]

	rows, err := m.db.QueryContext(ctx,
		`SELECT id, text, metadata_json, embedding FROM memories WHERE model = ? AND dimension = ?`,
		m.embedder.Model(), len(queryVec))
	if err != nil {
		return nil, services.Wrap(services.KindStorageFailure, "search", "query", "load memories", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			hit      Hit
			metaJSON string
			blob     []byte
		)
		if err := rows.Scan(&hit.ID, &hit.Text, &metaJSON, &blob); err != nil {
			return nil, services.Wrap(services.KindStorageFailure, "search", "scan", "read memory", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &hit.Metadata); err != nil {
			m.logger.Warn("memory metadata unreadable",
				logging.String("memory_id", hit.ID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "memory_metadata_invalid"),
			)
			continue
		}
		if !filter.Match(hit.Metadata.Channel, hit.Metadata.PublishedAt, hit.Metadata.Tags) {
			continue
		}
		hit.Score = cosineSimilarity(queryVec, decodeVector(blob))
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.KindStorageFailure, "search", "iterate", "read memories", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Count returns the number of stored memories.
func (m *Memory) Count(ctx context.Context) (int, error) {
	var n int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM memories").Scan(&n); err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

func clip(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
