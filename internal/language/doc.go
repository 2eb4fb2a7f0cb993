// Package language normalizes the language codes that appear in caption
// track listings, configuration, and WhisperX arguments.
//
// Caption tracks use BCP 47 tags ("en-GB", "pt-BR"), configuration may use
// ISO 639-2 codes or English names, and WhisperX expects ISO 639-1. All of
// them reduce to a two-letter code here.
package language
