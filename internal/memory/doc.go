// Package memory is the semantic half of search: each ingested video adds a
// memory (its summary, or a transcript excerpt when no summary exists) whose
// embedding is stored in a local SQLite database together with filterable
// metadata.
//
// Embeddings come from an OpenAI-compatible HTTP endpoint. Search embeds the
// query and ranks stored vectors of the same model by cosine similarity.
package memory
