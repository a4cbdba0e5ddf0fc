package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"storyloom/internal/logging"
	"storyloom/internal/services"
	"storyloom/internal/stage"
	"storyloom/internal/storyboard"
)

// Narrator synthesizes narration for one scene and reports its duration.
type Narrator interface {
	Synthesize(ctx context.Context, sceneIndex int, text, emotion string) (string, float64, error)
}

// Audio produces per-scene narration. Failures are per scene: the scene keeps
// no audio and the timeline falls back to its estimated duration.
type Audio struct {
	// Narrator may be nil when no speech backend is configured.
	Narrator Narrator
	Workers  int
	Logger   *slog.Logger
}

type narration struct {
	patch storyboard.AudioPatch
	note  string
}

// Execute implements stage.Handler.
func (h *Audio) Execute(ctx context.Context, s storyboard.State) (storyboard.Delta, error) {
	logger := logging.WithContext(ctx, logging.NewComponentLogger(h.Logger, "audio"))
	var d storyboard.Delta
	if h.Narrator == nil {
		d.Logf("Audio skipped: no speech backend configured")
		logger.Info("audio skipped",
			logging.String("reason", "no speech backend configured"),
			logging.String(logging.FieldEventType, "audio_skipped"),
		)
		return d, nil
	}

	results, err := forEachScene(ctx, s.Scenes, h.Workers, func(ctx context.Context, scene storyboard.Scene) (narration, error) {
		return h.narrate(ctx, logger, scene)
	})
	if err != nil {
		return storyboard.Delta{}, err
	}

	voiced := 0
	for _, r := range results {
		if r.note != "" {
			d.Log = append(d.Log, r.note)
			continue
		}
		d.Audio = append(d.Audio, r.patch)
		voiced++
	}
	d.Logf("Audio tracks generated (%d/%d scenes)", voiced, len(s.Scenes))
	logger.Info("audio complete",
		logging.Int("voiced", voiced),
		logging.Int("scenes", len(s.Scenes)),
		logging.String(logging.FieldEventType, "audio_complete"),
	)
	return d, nil
}

func (h *Audio) narrate(ctx context.Context, logger *slog.Logger, scene storyboard.Scene) (narration, error) {
	ctx = services.WithScene(ctx, scene.Index)
	if strings.TrimSpace(scene.Text) == "" {
		return narration{note: fmt.Sprintf("scene %d: no narration text", scene.Index)}, nil
	}
	path, duration, err := h.Narrator.Synthesize(ctx, scene.Index, scene.Text, scene.Emotion)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return narration{}, ctxErr
		}
		logging.WarnWithContext(logging.WithContext(ctx, logger), "narration failed", "audio_scene_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "scene renders with silence for its estimated duration"),
		)
		return narration{note: fmt.Sprintf("scene %d: audio failed: %v", scene.Index, err)}, nil
	}
	return narration{patch: storyboard.AudioPatch{Index: scene.Index, AudioPath: path, AudioDuration: duration}}, nil
}

// HealthCheck reports whether narration is synthesized.
func (h *Audio) HealthCheck(context.Context) stage.Health {
	if h.Narrator == nil {
		return stage.Degraded("audio", "no speech backend; scenes render silent")
	}
	return stage.Healthy("audio")
}
