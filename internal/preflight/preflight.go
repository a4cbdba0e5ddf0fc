package preflight

import (
	"context"

	"storyloom/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	// Warning marks a failed check that does not block a run.
	Warning bool
	Detail  string
}

// RunAll executes the readiness checks for a run. Checks for optional
// backends report warnings rather than failures, since the pipeline degrades
// (mock storyboard, passthrough validation) when they are missing.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckFreeSpace("Output disk space", cfg.Paths.OutputDir, cfg.Render.MinFreeGiB),
	}
	results = append(results, CheckLLM(ctx, "Language model", cfg))
	results = append(results, CheckBackends(cfg)...)
	return results
}

// Blocking returns the failed checks that should stop a run.
func Blocking(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Warning {
			out = append(out, r)
		}
	}
	return out
}
