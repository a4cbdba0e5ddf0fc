package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"storyloom/internal/config"
	"storyloom/internal/logging"
	"storyloom/internal/media/ffprobe"
	"storyloom/internal/pipeline"
	"storyloom/internal/render"
	"storyloom/internal/scripting"
	"storyloom/internal/services/gemini"
	"storyloom/internal/services/imagegen"
	"storyloom/internal/services/llm"
	"storyloom/internal/services/tts"
	"storyloom/internal/stage"
	"storyloom/internal/stages"
	"storyloom/internal/visual"
	"storyloom/internal/workspace"
)

const outputLockWait = 30 * time.Second

// languageModel is what the planner and the image validator need from a chat
// backend. Both the OpenAI-compatible and the Gemini clients satisfy it.
type languageModel interface {
	scripting.Completer
	visual.VisionCompleter
}

// buildOptions carries the per-run switches that override configuration.
type buildOptions struct {
	Params         pipelineParams
	ForceExecute   bool
	StoryboardFile string
}

type pipelineParams struct {
	AspectRatio  string
	TargetLength string
}

// collaborators is the wired stage set for one run plus what must be released
// when it ends.
type collaborators struct {
	Handlers pipeline.Handlers
	Summary  []backendSummary
	close    []func() error
}

type backendSummary struct {
	Name   string
	Detail string
	Mocked bool
}

// Close releases backend clients.
func (c *collaborators) Close() error {
	var first error
	for _, fn := range c.close {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Stages returns the handlers in graph order.
func (c *collaborators) Stages() []stage.Handler {
	h := c.Handlers
	return []stage.Handler{h.Init, h.Script, h.Audio, h.Visual, h.Merge}
}

// buildCollaborators wires configured backends into the five stage handlers.
// Any backend without credentials is replaced by its fallback: the mock
// storyboard, passthrough validation, placeholder stills, still-only scenes or
// silent audio.
func buildCollaborators(ctx context.Context, cfg *config.Config, ws *workspace.Workspace, opts buildOptions, logger *slog.Logger) (*collaborators, error) {
	c := &collaborators{}

	model, closeModel, err := newLanguageModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closeModel != nil {
		c.close = append(c.close, closeModel)
	}

	var completer scripting.Completer
	if model != nil {
		completer = model
		c.Summary = append(c.Summary, backendSummary{Name: "Language model", Detail: cfg.LLM.Provider + " " + cfg.LLM.Model})
	} else {
		c.Summary = append(c.Summary, backendSummary{Name: "Language model", Detail: "mock storyboard and template style", Mocked: true})
	}
	planner := scripting.NewPlanner(completer, scripting.Options{
		TargetLength: opts.Params.TargetLength,
		AspectRatio:  opts.Params.AspectRatio,
		Logger:       logger,
	})

	var scripter stages.Scripter = planner
	if path := strings.TrimSpace(opts.StoryboardFile); path != "" {
		doc, err := scripting.LoadFile(path)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		scripter = scripting.FileScripter{Doc: doc}
		c.Summary = append(c.Summary, backendSummary{Name: "Storyboard", Detail: "replayed from " + path})
	}

	initStage := &stages.Init{Planner: planner, DefaultStyle: cfg.Pipeline.DefaultStyle, Logger: logger}

	var generator visual.ImageGenerator
	var validator visual.Validator = visual.PassthroughValidator{}
	if cfg.ImageConfigured() {
		images := imagegen.NewImageClient(imagegen.Config{
			APIKey:  cfg.Image.APIKey,
			BaseURL: cfg.Image.BaseURL,
			Model:   cfg.Image.Model,
			Size:    cfg.Image.Size,
			Timeout: time.Duration(cfg.Image.TimeoutSeconds) * time.Second,
		}, ws.ImageDir, ws.ImageDir)
		generator = images
		initStage.Anchor = images
		if model != nil {
			validator = visual.NewModelValidator(model)
		}
		c.Summary = append(c.Summary, backendSummary{Name: "Image backend", Detail: cfg.Image.BaseURL})
	} else {
		generator = render.PlaceholderStills{Dir: ws.ImageDir, Width: cfg.Render.Width, Height: cfg.Render.Height}
		c.Summary = append(c.Summary, backendSummary{Name: "Image backend", Detail: "placeholder frames", Mocked: true})
	}
	if _, passthrough := validator.(visual.PassthroughValidator); passthrough {
		c.Summary = append(c.Summary, backendSummary{Name: "Image validation", Detail: "every image accepted", Mocked: true})
	} else {
		c.Summary = append(c.Summary, backendSummary{Name: "Image validation", Detail: cfg.LLM.VisionModel})
	}

	var animator visual.Animator = stages.StillOnly{}
	if cfg.VideoConfigured() && cfg.ImageConfigured() {
		animator = stages.Animator{Client: imagegen.NewVideoClient(imagegen.Config{
			APIKey:       cfg.Video.APIKey,
			BaseURL:      cfg.Video.BaseURL,
			Model:        cfg.Video.Model,
			Timeout:      time.Duration(cfg.Video.TimeoutSeconds) * time.Second,
			PollInterval: time.Duration(cfg.Video.PollIntervalSeconds) * time.Second,
		}, ws.VideoDir)}
		c.Summary = append(c.Summary, backendSummary{Name: "Video backend", Detail: cfg.Video.BaseURL})
	} else {
		c.Summary = append(c.Summary, backendSummary{Name: "Video backend", Detail: "still images only", Mocked: true})
	}

	engine, err := visual.NewEngine(visual.Options{
		Generator:    generator,
		Validator:    validator,
		Animator:     animator,
		ForceExecute: opts.ForceExecute,
		Logger:       logger,
	})
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	audioStage := &stages.Audio{Workers: cfg.Pipeline.AudioWorkers, Logger: logger}
	if cfg.TTSConfigured() {
		audioStage.Narrator = tts.NewClient(tts.Config{
			APIKey:  cfg.TTS.APIKey,
			BaseURL: cfg.TTS.BaseURL,
			Model:   cfg.TTS.Model,
			Voice:   cfg.TTS.Voice,
			Format:  cfg.TTS.Format,
			Timeout: time.Duration(cfg.TTS.TimeoutSeconds) * time.Second,
		}, ws.AudioDir, tts.WithProber(ffprobe.Prober{Binary: cfg.Render.FFprobeBinary}))
		c.Summary = append(c.Summary, backendSummary{Name: "Speech backend", Detail: cfg.TTS.BaseURL})
	} else {
		c.Summary = append(c.Summary, backendSummary{Name: "Speech backend", Detail: "silent scenes", Mocked: true})
	}

	c.Handlers = pipeline.Handlers{
		Init:   initStage,
		Script: &stages.Script{Scripter: scripter, Logger: logger},
		Audio:  audioStage,
		Visual: &stages.Visual{Engine: engine, Workers: cfg.Pipeline.VisualWorkers, Logger: logger},
		Merge: &stages.Merge{
			Renderer:  render.NewFromConfig(cfg, logger),
			OutputDir: cfg.Paths.OutputDir,
			WorkDir:   ws.RenderDir,
			LockWait:  outputLockWait,
			Logger:    logger,
		},
	}
	return c, nil
}

// newLanguageModel returns nil when no key is configured.
func newLanguageModel(ctx context.Context, cfg *config.Config) (languageModel, func() error, error) {
	if !cfg.LLMConfigured() {
		return nil, nil, nil
	}
	if cfg.LLM.Provider == config.ProviderGemini {
		client, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			VisionModel: cfg.LLM.VisionModel,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect gemini: %w", err)
		}
		return client, client.Close, nil
	}
	return llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		VisionModel:    cfg.LLM.VisionModel,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	}), nil, nil
}

// stageHealth collects health from every handler that reports it.
func stageHealth(ctx context.Context, handlers []stage.Handler) []stage.Health {
	var out []stage.Health
	for _, h := range handlers {
		if reporter, ok := h.(stage.HealthReporter); ok {
			out = append(out, reporter.HealthCheck(ctx))
		}
	}
	return out
}

func logBackends(logger *slog.Logger, summary []backendSummary) {
	for _, b := range summary {
		if b.Mocked {
			logging.WarnWithContext(logger, "backend not configured", "backend_fallback",
				logging.String("backend", b.Name),
				logging.String("fallback", b.Detail),
				logging.String(logging.FieldImpact, "run uses a built-in fallback"),
			)
			continue
		}
		logger.Info("backend configured",
			logging.String("backend", b.Name),
			logging.String("detail", b.Detail),
		)
	}
}
