// Package llm provides an OpenRouter chat client used to summarize
// transcripts.
//
// # Summarization
//
// Client.Summarize sends the transcript with a structured prompt requesting
// JSON output (summary, topics, speakers, key_takeaways). The returned
// media.Summary also carries keyword tags, the model that answered, the
// reported cost, and the request latency.
//
// # Configuration
//
// Requires api_key, model, and optionally base_url, referer, title, timeout.
// When unconfigured, summarization is skipped by the ingest executor.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.CompleteJSON: send system/user prompts, receive JSON response.
// Client.Summarize: transcript summarization for the summarizing stage.
// Client.HealthCheck: verify API key and model availability.
//
// # Retry Behaviour
//
// The client can retry on HTTP 408/429/5xx errors and network timeouts with
// exponential backoff. The ingest executor constructs it with a single
// attempt because the queue owns retries; every returned error carries a
// services.Kind for that decision. Context cancellation aborts immediately.
package llm
