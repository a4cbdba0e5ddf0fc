package stages

import (
	"context"
	"log/slog"
	"strings"

	"storyloom/internal/logging"
	"storyloom/internal/scripting"
	"storyloom/internal/stage"
	"storyloom/internal/storyboard"
)

// StylePlanner expands the user's style hint into a full style prompt.
type StylePlanner interface {
	RefineStyle(ctx context.Context, topic, style string) (string, error)
}

// AnchorGenerator renders the reference image every scene is conditioned on.
type AnchorGenerator interface {
	GenerateAnchor(ctx context.Context, prompt string) (string, error)
}

// Init sets the run-wide style prompt, anchor image and music style.
type Init struct {
	Planner StylePlanner
	// Anchor may be nil when no image backend is configured.
	Anchor       AnchorGenerator
	DefaultStyle string
	Logger       *slog.Logger
}

func (h *Init) style(s storyboard.State) string {
	if style := strings.TrimSpace(s.Params.Style); style != "" {
		return style
	}
	if style := strings.TrimSpace(h.DefaultStyle); style != "" {
		return style
	}
	return scripting.DefaultStyle
}

// Execute implements stage.Handler.
func (h *Init) Execute(ctx context.Context, s storyboard.State) (storyboard.Delta, error) {
	logger := logging.WithContext(ctx, logging.NewComponentLogger(h.Logger, "init"))
	style := h.style(s)
	var d storyboard.Delta

	stylePrompt := ""
	if h.Planner != nil {
		refined, err := h.Planner.RefineStyle(ctx, s.Topic, style)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return storyboard.Delta{}, ctxErr
			}
			logging.WarnWithContext(logger, "style refinement failed", "style_fallback",
				logging.Error(err),
				logging.String(logging.FieldImpact, "template style prompt used"),
			)
			d.Logf("Style refinement failed, using template: %v", err)
		}
		stylePrompt = strings.TrimSpace(refined)
	}
	if stylePrompt == "" {
		stylePrompt = scripting.StyleFallback(s.Topic, style)
	}
	d.StylePrompt = storyboard.StringPtr(stylePrompt)
	d.BGMStyle = storyboard.StringPtr(style)

	anchor := ""
	if h.Anchor != nil {
		path, err := h.Anchor.GenerateAnchor(ctx, stylePrompt)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return storyboard.Delta{}, ctxErr
			}
			logging.WarnWithContext(logger, "anchor image generation failed", "anchor_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "scenes are generated without a reference image"),
			)
			d.Logf("Anchor image failed: %v", err)
		} else {
			anchor = path
		}
	}
	d.AnchorImage = storyboard.StringPtr(anchor)
	if anchor != "" {
		d.Logf("Init completed. Anchor saved at %s", anchor)
	} else {
		d.Logf("Init completed without anchor image")
	}
	logger.Info("style ready",
		logging.String("style", style),
		logging.String("anchor_image", anchor),
		logging.String(logging.FieldEventType, "init_complete"),
	)
	return d, nil
}

// HealthCheck reports whether the init stage runs on real backends.
func (h *Init) HealthCheck(context.Context) stage.Health {
	if mocked, ok := h.Planner.(interface{ Mocked() bool }); ok && mocked.Mocked() {
		return stage.Degraded("init", "no language model; template style prompt")
	}
	if h.Anchor == nil {
		return stage.Degraded("init", "no image backend; runs without anchor image")
	}
	return stage.Healthy("init")
}
