package preflight

import (
	"context"

	"sage/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	// Skipped marks checks whose feature is disabled.
	Skipped bool
	Detail  string
}

// RunAll executes the local checks plus, when services is true, the live
// service checks for every enabled feature.
func RunAll(ctx context.Context, cfg *config.Config, services bool) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if !services {
		return results
	}

	if cfg.SummarizationEnabled() {
		results = append(results, CheckLLM(ctx, cfg.LLM))
	} else {
		results = append(results, Result{Name: "Summarization LLM", Skipped: true, Detail: "disabled"})
	}
	if cfg.SemanticEnabled() {
		results = append(results, CheckEmbeddings(ctx, cfg.Embeddings))
	} else {
		results = append(results, Result{Name: "Embeddings", Skipped: true, Detail: "disabled"})
	}
	return results
}
