package scripting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"storyloom/internal/logging"
	"storyloom/internal/services"
	"storyloom/internal/services/llm"
	"storyloom/internal/storyboard"
)

// DefaultStyle is used when the caller gives no style hint.
const DefaultStyle = "cinematic"

// Completer is the JSON chat surface shared by the llm and gemini clients.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Options tune a Planner.
type Options struct {
	TargetLength string
	AspectRatio  string
	Logger       *slog.Logger
}

// Planner produces style prompts and storyboards. A nil Completer makes it
// use the built-in templates.
type Planner struct {
	completer Completer
	opts      Options
	logger    *slog.Logger
}

// NewPlanner builds a Planner.
func NewPlanner(completer Completer, opts Options) *Planner {
	return &Planner{
		completer: completer,
		opts:      opts,
		logger:    logging.NewComponentLogger(opts.Logger, "scripting"),
	}
}

// Mocked reports whether the planner runs without a language model.
func (p *Planner) Mocked() bool {
	return p.completer == nil
}

// StyleFallback is the template style prompt used without a language model.
func StyleFallback(topic, style string) string {
	return fmt.Sprintf("Cinematic shot, %s, high detailed, consistent lighting, related to %s, 8k resolution.", style, topic)
}

// RefineStyle expands a short style hint into a full image style prompt.
func (p *Planner) RefineStyle(ctx context.Context, topic, style string) (string, error) {
	if strings.TrimSpace(style) == "" {
		style = DefaultStyle
	}
	if p.completer == nil {
		return StyleFallback(topic, style), nil
	}
	content, err := p.completer.CompleteJSON(ctx, styleSystemPrompt, styleUserPrompt(topic, style))
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "scripting", "refine style", "", err)
	}
	var parsed struct {
		StylePrompt string `json:"style_prompt"`
	}
	if err := llm.DecodeJSON(content, &parsed); err != nil {
		return "", services.Wrap(services.ErrValidation, "scripting", "parse style", "", err)
	}
	if s := strings.TrimSpace(parsed.StylePrompt); s != "" {
		return s, nil
	}
	return "", services.Wrap(services.ErrValidation, "scripting", "parse style", "empty style prompt", nil)
}

// Storyboard plans the scenes for topic. Returned scenes carry indices 0..N-1.
func (p *Planner) Storyboard(ctx context.Context, topic, stylePrompt string) ([]storyboard.Scene, error) {
	if p.completer == nil {
		p.logger.Info("using mock storyboard",
			logging.String(logging.FieldEventType, "storyboard_mock"),
			logging.String("reason", "no language model configured"),
		)
		return MockStoryboard(topic, stylePrompt), nil
	}
	user := storyboardUserPrompt(topic, stylePrompt, p.opts.TargetLength, p.opts.AspectRatio)
	content, err := p.completer.CompleteJSON(ctx, storyboardSystemPrompt, user)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "scripting", "plan storyboard", "", err)
	}
	var parsed struct {
		Items []Item `json:"items"`
	}
	if err := llm.DecodeJSON(content, &parsed); err != nil {
		return nil, services.Wrap(services.ErrValidation, "scripting", "parse storyboard", "", err)
	}
	scenes := ToScenes(parsed.Items)
	p.logger.Info("storyboard planned",
		logging.Int("scenes", len(scenes)),
		logging.String(logging.FieldEventType, "storyboard_planned"),
	)
	return scenes, nil
}

// MockStoryboard is the two-scene storyboard used without a language model.
func MockStoryboard(topic, stylePrompt string) []storyboard.Scene {
	return ToScenes([]Item{
		{
			Text:              fmt.Sprintf("Welcome to the world of %s.", topic),
			Emotion:           "mysterious",
			VisualPrompt:      fmt.Sprintf("Wide shot of %s, %s, cinematic lighting", topic, stylePrompt),
			VisualTags:        []string{"wide-shot", "intro"},
			EstimatedDuration: 3.0,
		},
		{
			Text:              "Everything changes here.",
			Emotion:           "intense",
			VisualPrompt:      fmt.Sprintf("Close up details of %s, dramatic shadows", topic),
			VisualTags:        []string{"close-up", "drama"},
			EstimatedDuration: 2.5,
		},
	})
}
