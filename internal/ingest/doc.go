// Package ingest implements the queue executor for video ingestion.
//
// An item moves through the acquisition states (validating, fast_path,
// slow_path_download, slow_path_transcribe, normalizing), then summarizing
// and storing. Each stage reports the rate budgets it consumes so the queue
// can reserve them before dispatch: acquisition states use the video
// platform budget, summarizing uses the LLM budget when a summary was
// requested, and storing uses the embeddings budget while semantic memory
// still needs the item.
//
// Storing is idempotent across retries: once the relational rows exist, a
// retry only repeats the semantic memory write. A storage_failure leaves the
// transcript and summary on the item so the queue can retry persistence
// alone.
package ingest
