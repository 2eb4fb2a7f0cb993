// Package textutil provides text processing utilities for transcript
// normalization, word counting, keyword extraction, and filesystem-safe
// tokens.
//
// Normalization applies NFKC, strips control characters and caption markup
// (HTML tags, entities, bracketed cues such as [Music]), and collapses
// whitespace. Tokenization lowercases text, splits on non-alphanumeric
// characters, and filters tokens shorter than 3 characters.
package textutil
