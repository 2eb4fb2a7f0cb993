// Package services defines shared utilities consumed by the ingestion stages
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp queue item IDs, stage names, and correlation
//     identifiers for logging.
//   - The error taxonomy (Kind) plus the Wrap helper that tags failures so the
//     queue can decide between retrying, falling through, and failing.
//   - Exit code mapping used by the CLI.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
