// Package store persists ingestion results in SQLite.
//
// Each successful ingestion writes one videos row, one transcripts row, and
// an optional summaries row inside a single transaction, then indexes the
// title, channel, summary, transcript, and tags in an FTS5 table used by
// KeywordSearch. Re-ingesting a source appends new rows rather than
// replacing earlier ones.
//
// Schema changes are applied from embedded migrations on Open. Writes retry
// briefly while SQLite reports the database as busy, and every failure is
// returned as a storage_failure so callers can retry persistence without
// recomputing upstream work.
package store
