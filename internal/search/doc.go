// Package search merges keyword and semantic retrieval.
//
// The two backends score on unrelated scales, so each backend's scores are
// min-max normalized over the filtered candidate set before they are
// combined as keyword_weight*kw + semantic_weight*sem. A candidate missing
// from one backend scores 0 for that half. Each backend receives the filters
// and applies them before cutting its candidate list, and the merger checks
// the union again, so the limit applies to filtered results.
package search
