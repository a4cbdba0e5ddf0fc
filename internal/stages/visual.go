package stages

import (
	"context"
	"log/slog"

	"storyloom/internal/logging"
	"storyloom/internal/services/imagegen"
	"storyloom/internal/stage"
	"storyloom/internal/storyboard"
	"storyloom/internal/visual"
)

// SceneProcessor drives one scene through generate, validate and retry.
type SceneProcessor interface {
	Process(ctx context.Context, scene storyboard.Scene, anchorImage string) (visual.Result, error)
}

// Visual produces per-scene images and clips. Exhaustion of any scene without
// force execution fails the stage and aborts the run.
type Visual struct {
	Engine  SceneProcessor
	Workers int
	Logger  *slog.Logger
}

// Execute implements stage.Handler.
func (h *Visual) Execute(ctx context.Context, s storyboard.State) (storyboard.Delta, error) {
	logger := logging.WithContext(ctx, logging.NewComponentLogger(h.Logger, "visual"))
	results, err := forEachScene(ctx, s.Scenes, h.Workers, func(ctx context.Context, scene storyboard.Scene) (visual.Result, error) {
		return h.Engine.Process(ctx, scene, s.AnchorImage)
	})
	if err != nil {
		// Keep the attempt history of every scene that got that far.
		var d storyboard.Delta
		for _, r := range results {
			d.Log = append(d.Log, r.Notes...)
		}
		return d, err
	}

	var d storyboard.Delta
	forced := 0
	for _, r := range results {
		d.Log = append(d.Log, r.Notes...)
		d.Visual = append(d.Visual, r.Patch())
		if r.Outcome == visual.OutcomeForced {
			forced++
		}
	}
	d.Logf("Visual assets generated (%d scenes, %d forced)", len(results), forced)
	logger.Info("visual complete",
		logging.Int("scenes", len(results)),
		logging.Int("forced", forced),
		logging.String(logging.FieldEventType, "visual_complete"),
	)
	return d, nil
}

// HealthCheck reports whether generated stills are validated.
func (h *Visual) HealthCheck(context.Context) stage.Health {
	if e, ok := h.Engine.(interface{ ForceExecute() bool }); ok && e.ForceExecute() {
		return stage.Degraded("visual", "force execute enabled; rejected images may be used")
	}
	return stage.Healthy("visual")
}

// Animator adapts the image-to-video client to the visual engine.
type Animator struct {
	Client *imagegen.VideoClient
}

// Animate implements visual.Animator.
func (a Animator) Animate(ctx context.Context, sceneIndex int, imagePath string, motionStrength float64) (visual.Animation, error) {
	clip, err := a.Client.Animate(ctx, sceneIndex, imagePath, motionStrength)
	if err != nil {
		return visual.Animation{}, err
	}
	return visual.Animation{VideoPath: clip.Path, RewrittenPrompt: clip.ActualPrompt}, nil
}

// StillOnly is the animator used without a video backend: every scene keeps
// its still image.
type StillOnly struct{}

// Animate implements visual.Animator.
func (StillOnly) Animate(context.Context, int, string, float64) (visual.Animation, error) {
	return visual.Animation{}, errNoVideoBackend
}
