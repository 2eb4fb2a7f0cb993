// Package engine assembles the ingestion pipeline from configuration.
//
// New opens the relational store and, when embeddings are configured, the
// semantic memory store, then wires the rate limiter, progress reporter,
// acquisition machine, ingest executor, processing queue, and hybrid search
// merger. Lookups and searches work immediately. Start takes an exclusive
// file lock under the data directory so only one process ingests into a
// store at a time, then launches the queue dispatcher.
package engine
