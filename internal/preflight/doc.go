// Package preflight provides readiness checks for the external binaries,
// services, and filesystem paths that sage depends on.
//
// The CLI status command renders these results. Directory and binary checks
// are local and cheap; the LLM and embeddings checks make one live request
// each and only run when asked, since they cost an API call.
//
// Each service check is gated by its configuration: a feature without
// credentials is reported as disabled rather than failing.
package preflight
