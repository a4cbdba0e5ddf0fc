package stages

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"storyloom/internal/logging"
	"storyloom/internal/stage"
	"storyloom/internal/storyboard"
	"storyloom/internal/timeline"
	"storyloom/internal/workspace"
)

var errNoVideoBackend = errors.New("no image-to-video backend configured")

// Renderer encodes a render plan into a video file.
type Renderer interface {
	Render(ctx context.Context, plan timeline.RenderPlan, workDir, outputPath string) (string, error)
}

// Merge reconciles the timeline and hands it to the renderer. Neither an empty
// storyboard nor a render failure fails the stage: both are logged and leave
// the final path empty.
type Merge struct {
	Renderer  Renderer
	OutputDir string
	WorkDir   string
	// LockWait bounds how long to wait for another run writing the same file.
	LockWait time.Duration
	// Exists reports whether an asset is on disk. Nil uses os.Stat.
	Exists func(string) bool
	Logger *slog.Logger
}

// Execute implements stage.Handler.
func (h *Merge) Execute(ctx context.Context, s storyboard.State) (storyboard.Delta, error) {
	logger := logging.WithContext(ctx, logging.NewComponentLogger(h.Logger, "merge"))
	var d storyboard.Delta
	d.FinalVideoPath = storyboard.StringPtr("")

	if len(s.Scenes) == 0 {
		d.Logf("Error: empty storyboard, nothing to merge")
		logging.WarnWithContext(logger, "empty storyboard", "merge_empty",
			logging.String(logging.FieldImpact, "no video rendered"),
		)
		return d, nil
	}

	exists := h.Exists
	if exists == nil {
		exists = fileExists
	}
	plan, warnings := timeline.Reconcile(s.Scenes, s.BGMStyle, exists)
	for _, w := range warnings {
		d.Log = append(d.Log, w)
		logging.WarnWithContext(logger, "missing asset", "merge_missing_asset",
			logging.String("detail", w),
			logging.String(logging.FieldImpact, "placeholder or silence substituted"),
		)
	}
	logger.Info("timeline reconciled",
		logging.Int("clips", len(plan.Clips)),
		logging.Int("subtitles", len(plan.Subtitles)),
		logging.Float64("timeline_seconds", plan.TotalDuration),
		logging.String("bgm_style", plan.BGMStyle),
		logging.String(logging.FieldEventType, "timeline_reconciled"),
	)

	output := filepath.Join(h.OutputDir, timeline.OutputFilename(s.Topic))
	final, err := h.render(ctx, plan, output)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return storyboard.Delta{}, ctxErr
		}
		d.Logf("render failed: %v", err)
		logging.ErrorWithContext(logger, "render failed", "render_failed",
			logging.Error(err),
			logging.String("output", output),
			logging.String(logging.FieldErrorHint, "run storyloom doctor to check ffmpeg"),
		)
		return d, nil
	}
	d.FinalVideoPath = storyboard.StringPtr(final)
	d.Logf("Video rendered: %s (%.1fs, %d clips, %d subtitles)", final, plan.TotalDuration, len(plan.Clips), len(plan.Subtitles))
	return d, nil
}

func (h *Merge) render(ctx context.Context, plan timeline.RenderPlan, output string) (string, error) {
	lock, err := workspace.LockOutput(ctx, output, h.LockWait)
	if err != nil {
		return "", err
	}
	defer func() { _ = lock.Unlock() }()
	return h.Renderer.Render(ctx, plan, h.WorkDir, output)
}

// HealthCheck implements stage.HealthReporter.
func (h *Merge) HealthCheck(context.Context) stage.Health {
	if h.Renderer == nil {
		return stage.Unhealthy("merge", "renderer unavailable")
	}
	return stage.Healthy("merge")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
