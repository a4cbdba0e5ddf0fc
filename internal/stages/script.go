package stages

import (
	"context"
	"log/slog"

	"storyloom/internal/logging"
	"storyloom/internal/stage"
	"storyloom/internal/storyboard"
)

// Scripter plans the storyboard for a topic.
type Scripter interface {
	Storyboard(ctx context.Context, topic, stylePrompt string) ([]storyboard.Scene, error)
}

// Script seeds the scene collection. A collaborator error is logged and yields
// zero scenes; the pipeline treats an empty seed as fatal.
type Script struct {
	Scripter Scripter
	Logger   *slog.Logger
}

// Execute implements stage.Handler.
func (h *Script) Execute(ctx context.Context, s storyboard.State) (storyboard.Delta, error) {
	logger := logging.WithContext(ctx, logging.NewComponentLogger(h.Logger, "script"))
	var d storyboard.Delta

	scenes, err := h.Scripter.Storyboard(ctx, s.Topic, s.StylePrompt)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return storyboard.Delta{}, ctxErr
		}
		logging.ErrorWithContext(logger, "storyboard planning failed", "script_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the language model configuration or pass --storyboard"),
		)
		d.Logf("Script generation failed: %v", err)
		scenes = nil
	}

	seed := make([]storyboard.Scene, len(scenes))
	for i, scene := range scenes {
		scene.Index = i
		scene.AudioPath, scene.AudioDuration = "", 0
		scene.ImagePath, scene.VideoPath, scene.ExtendPrompt = "", "", nil
		seed[i] = scene
	}
	d.Seed = seed
	d.Logf("Script generated with %d scenes", len(seed))
	logger.Info("storyboard seeded",
		logging.Int("scenes", len(seed)),
		logging.String(logging.FieldEventType, "script_complete"),
	)
	return d, nil
}

// HealthCheck reports whether scripts come from a language model.
func (h *Script) HealthCheck(context.Context) stage.Health {
	if mocked, ok := h.Scripter.(interface{ Mocked() bool }); ok && mocked.Mocked() {
		return stage.Degraded("script", "no language model; mock storyboard")
	}
	return stage.Healthy("script")
}
