// Package main hosts the sage CLI entrypoint and command graph.
//
// The Cobra command tree loads configuration once, builds an engine for the
// commands that need one, and renders results as tables or JSON. Ingest runs
// the processing queue in-process and holds the ingest lock for its
// duration; search, show, and status only read the stores.
//
// Exit status follows the failure kind: 1 for invalid input or
// configuration, 2 for unavailable sources, 3 for network and rate-limit
// failures, 4 for other processing failures, and 5 for storage failures.
package main
