package visual

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"storyloom/internal/logging"
	"storyloom/internal/services"
	"storyloom/internal/storyboard"
)

// ErrGenerationExhausted is returned when a scene fails every attempt and force
// execution is disabled.
var ErrGenerationExhausted = errors.New("visual generation exhausted")

// ImageGenerator renders a still for a scene, conditioned on the anchor image.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, sceneIndex int, prompt, anchorImage string) (string, error)
}

// Validator scores an image against the prompt that produced it.
type Validator interface {
	Validate(ctx context.Context, imagePath, prompt string) (Verdict, error)
}

// PromptOptimizer rewrites a prompt so the next attempt addresses reason.
type PromptOptimizer interface {
	OptimizePrompt(ctx context.Context, prompt, reason string) (string, error)
}

// Animation is the image-to-video backend's result.
type Animation struct {
	VideoPath string
	// RewrittenPrompt is the prompt the backend actually used, when it reports one.
	RewrittenPrompt string
}

// Animator turns an accepted still into a short clip.
type Animator interface {
	Animate(ctx context.Context, sceneIndex int, imagePath string, motionStrength float64) (Animation, error)
}

// Outcome records how a scene left the machine.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeForced   Outcome = "forced"
)

// Result is the per-scene output of Process.
type Result struct {
	Index        int
	ImagePath    string
	VideoPath    string
	ExtendPrompt *string
	Attempts     int
	Outcome      Outcome
	// Notes are human-readable status lines for the run log, in order.
	Notes []string
}

// HasAssets reports whether the scene ended with any image or video.
func (r Result) HasAssets() bool {
	return r.ImagePath != "" || r.VideoPath != ""
}

// Patch converts the result into the visual branch's scene update.
func (r Result) Patch() storyboard.VisualPatch {
	return storyboard.VisualPatch{
		Index:        r.Index,
		ImagePath:    r.ImagePath,
		VideoPath:    r.VideoPath,
		ExtendPrompt: r.ExtendPrompt,
	}
}

// Options configures an Engine. Generator, Validator and Animator are required.
type Options struct {
	Generator    ImageGenerator
	Validator    Validator
	Optimizer    PromptOptimizer
	Animator     Animator
	ForceExecute bool
	Logger       *slog.Logger
}

// Engine runs the per-scene retry machine. It holds no per-scene state and is
// safe for concurrent use when its collaborators are.
type Engine struct {
	generator    ImageGenerator
	validator    Validator
	optimizer    PromptOptimizer
	animator     Animator
	forceExecute bool
	logger       *slog.Logger
}

// NewEngine builds an engine. A nil Optimizer falls back to TemplateOptimizer.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Generator == nil || opts.Validator == nil || opts.Animator == nil {
		return nil, services.Wrap(services.ErrConfiguration, "visual", "new engine", "generator, validator and animator are required", nil)
	}
	optimizer := opts.Optimizer
	if optimizer == nil {
		optimizer = TemplateOptimizer{}
	}
	return &Engine{
		generator:    opts.Generator,
		validator:    opts.Validator,
		optimizer:    optimizer,
		animator:     opts.Animator,
		forceExecute: opts.ForceExecute,
		logger:       logging.NewComponentLogger(opts.Logger, "visual"),
	}, nil
}

// ForceExecute reports whether exhausted scenes fall back to their last image.
func (e *Engine) ForceExecute() bool {
	return e.forceExecute
}

type phase int

const (
	phaseGenerate phase = iota
	phaseValidate
	phaseRetry
	phaseAccept
	phaseExhausted
	phaseDone
)

type machine struct {
	index     int
	anchor    string
	prompt    string
	attempt   int
	image     string
	lastImage string
	reason    string
	result    Result
}

func (m *machine) notef(format string, args ...any) {
	m.result.Notes = append(m.result.Notes, fmt.Sprintf("scene %d: ", m.index)+fmt.Sprintf(format, args...))
}

func (m *machine) afterRejection() phase {
	if m.attempt >= MaxAttempts {
		return phaseExhausted
	}
	return phaseRetry
}

// Process drives one scene to an accepted or forced visual. On exhaustion the
// returned Result carries only the attempt notes.
func (e *Engine) Process(ctx context.Context, scene storyboard.Scene, anchorImage string) (Result, error) {
	ctx = services.WithScene(ctx, scene.Index)
	logger := logging.WithContext(ctx, e.logger)

	m := &machine{
		index:  scene.Index,
		anchor: anchorImage,
		prompt: scene.VisualPrompt,
		result: Result{Index: scene.Index},
	}

	for ph := phaseGenerate; ph != phaseDone; {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		switch ph {
		case phaseGenerate:
			m.attempt++
			m.image = ""
			image, err := e.generator.GenerateImage(ctx, m.index, m.prompt, m.anchor)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return Result{}, ctxErr
				}
				m.reason = "image generation failed: " + err.Error()
				logging.WarnWithContext(logger, "image generation failed", "visual_generate_failed",
					logging.Int("attempt", m.attempt),
					logging.Error(err),
					logging.String(logging.FieldImpact, "attempt counted as rejected"),
				)
				m.notef("attempt %d failed: %s", m.attempt, m.reason)
				ph = m.afterRejection()
				continue
			}
			m.image = image
			m.lastImage = image
			ph = phaseValidate

		case phaseValidate:
			verdict, err := e.validator.Validate(ctx, m.image, m.prompt)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return Result{}, ctxErr
				}
				m.reason = "validation unavailable: " + err.Error()
				logging.WarnWithContext(logger, "image validation failed", "visual_validate_failed",
					logging.Int("attempt", m.attempt),
					logging.Error(err),
					logging.String(logging.FieldImpact, "attempt counted as rejected"),
				)
				m.notef("attempt %d rejected: %s", m.attempt, m.reason)
				ph = m.afterRejection()
				continue
			}
			if verdict.Accepted() {
				logger.Info("image accepted",
					logging.Int("attempt", m.attempt),
					logging.Float64("alignment", float64(verdict.Alignment)),
					logging.Float64("quality", float64(verdict.Quality)),
					logging.String(logging.FieldEventType, "visual_attempt_accepted"),
				)
				ph = phaseAccept
				continue
			}
			m.reason = verdict.Reason()
			logger.Info("image rejected",
				logging.Int("attempt", m.attempt),
				logging.Float64("alignment", float64(verdict.Alignment)),
				logging.Float64("quality", float64(verdict.Quality)),
				logging.String("reason", m.reason),
				logging.String(logging.FieldEventType, "visual_attempt_rejected"),
			)
			m.notef("attempt %d rejected: %s", m.attempt, m.reason)
			ph = m.afterRejection()

		case phaseRetry:
			m.prompt = e.optimize(ctx, logger, m.prompt, m.reason)
			ph = phaseGenerate

		case phaseAccept:
			m.result.Outcome = OutcomeAccepted
			m.result.ImagePath = m.image
			animation, ok := e.animate(ctx, logger, m)
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			if ok {
				m.result.VideoPath = animation.VideoPath
				if rewritten := strings.TrimSpace(animation.RewrittenPrompt); rewritten != "" {
					m.result.ExtendPrompt = storyboard.StringPtr(rewritten)
				}
			}
			m.notef("accepted on attempt %d", m.attempt)
			ph = phaseDone

		case phaseExhausted:
			if !e.forceExecute {
				logging.ErrorWithContext(logger, "visual attempts exhausted", "visual_exhausted",
					logging.Int("attempts", m.attempt),
					logging.String("reason", m.reason),
					logging.String(logging.FieldErrorHint, "enable pipeline.force_execute or adjust the scene prompt"),
				)
				partial := Result{Index: m.index, Attempts: m.attempt, Notes: m.result.Notes}
				return partial, fmt.Errorf("%w: scene %d failed %d attempts: %s", ErrGenerationExhausted, m.index, m.attempt, m.reason)
			}
			m.result.Outcome = OutcomeForced
			if m.lastImage == "" {
				logging.WarnWithContext(logger, "force execute without any generated image", "visual_forced_empty",
					logging.String(logging.FieldImpact, "scene renders with a placeholder frame"),
				)
				m.notef("force-executed after %d attempts with no image; placeholder will be used", m.attempt)
				ph = phaseDone
				continue
			}
			m.result.ImagePath = m.lastImage
			m.image = m.lastImage
			animation, ok := e.animate(ctx, logger, m)
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			if ok {
				m.result.VideoPath = animation.VideoPath
			}
			logging.WarnWithContext(logger, "force executing last image", "visual_forced",
				logging.Int("attempts", m.attempt),
				logging.String("image", m.lastImage),
				logging.String(logging.FieldImpact, "scene uses an image that failed validation"),
			)
			m.notef("force-executed last image after %d attempts", m.attempt)
			ph = phaseDone
		}
	}

	m.result.Attempts = m.attempt
	return m.result, nil
}

func (e *Engine) animate(ctx context.Context, logger *slog.Logger, m *machine) (Animation, bool) {
	animation, err := e.animator.Animate(ctx, m.index, m.image, MotionStrength)
	if err == nil && strings.TrimSpace(animation.VideoPath) == "" {
		err = errors.New("backend returned no video")
	}
	if err != nil {
		if ctx.Err() != nil {
			return Animation{}, false
		}
		logging.WarnWithContext(logger, "image-to-video failed; keeping still image", "visual_animate_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "scene renders as a still image"),
		)
		m.notef("image-to-video failed, using still image: %v", err)
		return Animation{}, false
	}
	return animation, true
}

func (e *Engine) optimize(ctx context.Context, logger *slog.Logger, prompt, reason string) string {
	fallback, _ := TemplateOptimizer{}.OptimizePrompt(ctx, prompt, reason)
	if _, isTemplate := e.optimizer.(TemplateOptimizer); isTemplate {
		return fallback
	}
	next, err := e.optimizer.OptimizePrompt(ctx, prompt, reason)
	next = strings.TrimSpace(next)
	if err != nil || next == "" || next == strings.TrimSpace(prompt) {
		attrs := []logging.Attr{logging.String(logging.FieldImpact, "template prompt used for retry")}
		if err != nil {
			attrs = append(attrs, logging.Error(err))
		}
		logging.WarnWithContext(logger, "prompt optimizer unusable", "visual_optimize_fallback", attrs...)
		return fallback
	}
	return next
}

// TemplateOptimizer appends the failure reason and quality hints to the prompt.
type TemplateOptimizer struct{}

func (TemplateOptimizer) OptimizePrompt(_ context.Context, prompt, reason string) (string, error) {
	return fmt.Sprintf("%s, corrected %s, high quality, fixed anatomy", strings.TrimSpace(prompt), strings.TrimSpace(reason)), nil
}
