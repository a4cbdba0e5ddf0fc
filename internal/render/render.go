package render

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"storyloom/internal/config"
	"storyloom/internal/logging"
	"storyloom/internal/media/ffprobe"
	"storyloom/internal/services"
	"storyloom/internal/textutil"
	"storyloom/internal/timeline"
)

// SubtitleFontSize is the burned-in subtitle size in libass units.
const SubtitleFontSize = 22

type commandRunner func(ctx context.Context, name string, args ...string) error

// DurationProber measures the native length of a media file.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Options configures a Renderer.
type Options struct {
	FFmpegBinary string
	Width        int
	Height       int
	FPS          int
	VideoCodec   string
	AudioCodec   string
	Preset       string
	BGMDir       string
	BGMVolume    float64
}

// Renderer encodes render plans with ffmpeg.
type Renderer struct {
	opts   Options
	prober DurationProber
	run    commandRunner
	logger *slog.Logger
}

// New constructs a renderer. A nil prober disables time-stretching; every video
// is then trimmed or held to its target.
func New(opts Options, prober DurationProber, logger *slog.Logger) *Renderer {
	if strings.TrimSpace(opts.FFmpegBinary) == "" {
		opts.FFmpegBinary = "ffmpeg"
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1280, 720
	}
	if opts.FPS <= 0 {
		opts.FPS = 24
	}
	if opts.VideoCodec == "" {
		opts.VideoCodec = "libx264"
	}
	if opts.AudioCodec == "" {
		opts.AudioCodec = "aac"
	}
	if opts.Preset == "" {
		opts.Preset = "medium"
	}
	return &Renderer{
		opts:   opts,
		prober: prober,
		run:    defaultCommandRunner,
		logger: logging.NewComponentLogger(logger, "render"),
	}
}

// NewFromConfig builds a renderer from the render and paths sections.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Renderer {
	r := cfg.Render
	return New(Options{
		FFmpegBinary: r.FFmpegBinary,
		Width:        r.Width,
		Height:       r.Height,
		FPS:          r.FPS,
		VideoCodec:   r.VideoCodec,
		AudioCodec:   r.AudioCodec,
		Preset:       r.Preset,
		BGMDir:       cfg.Paths.BGMDir,
		BGMVolume:    r.BGMVolume,
	}, ffprobe.Prober{Binary: r.FFprobeBinary}, logger)
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (r *Renderer) WithCommandRunner(run func(ctx context.Context, name string, args ...string) error) {
	if r != nil && run != nil {
		r.run = run
	}
}

func (r *Renderer) canvas() canvas {
	return canvas{
		width:      r.opts.Width,
		height:     r.opts.Height,
		fps:        r.opts.FPS,
		videoCodec: r.opts.VideoCodec,
		audioCodec: r.opts.AudioCodec,
		preset:     r.opts.Preset,
	}
}

// Render encodes plan into outputPath, using workDir for intermediate files.
// The output is written to a temporary file and renamed on success.
func (r *Renderer) Render(ctx context.Context, plan timeline.RenderPlan, workDir, outputPath string) (string, error) {
	if plan.Empty() {
		return "", services.Wrap(services.ErrValidation, "render", "plan", "render plan has no clips", nil)
	}
	if strings.TrimSpace(outputPath) == "" {
		return "", services.Wrap(services.ErrValidation, "render", "plan", "output path is required", nil)
	}
	segmentDir := filepath.Join(workDir, "segments")
	if err := os.MkdirAll(segmentDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "render", "prepare", "create segment directory", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "render", "prepare", "create output directory", err)
	}

	c := r.canvas()
	segments := make([]string, 0, len(plan.Clips))
	targets := make([]float64, 0, len(plan.Clips))
	for i, clip := range plan.Clips {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		spec, err := r.resolveSegment(ctx, clip, workDir)
		if err != nil {
			return "", err
		}
		spec.output = filepath.Join(segmentDir, fmt.Sprintf("seg_%03d.mp4", i))
		if err := r.run(ctx, r.opts.FFmpegBinary, segmentArgs(c, spec)...); err != nil {
			return "", services.Wrap(services.ErrExternalTool, "render", "segment", fmt.Sprintf("encode scene %d", clip.Index), err)
		}
		segments = append(segments, spec.output)
		targets = append(targets, clip.Target)
	}

	srtPath := ""
	if len(plan.Subtitles) > 0 {
		srtPath = filepath.Join(workDir, "subtitles.srt")
		if err := writeSRT(srtPath, shiftedCues(plan, targets)); err != nil {
			return "", services.Wrap(services.ErrConfiguration, "render", "subtitles", "write srt", err)
		}
	}
	bgmPath := r.musicBed(plan.BGMStyle)

	tmpPath := outputPath + ".part"
	_ = os.Remove(tmpPath)
	args := finalArgs(c, segments, targets, srtPath, bgmPath, r.opts.BGMVolume, SubtitleFontSize, tmpPath)
	if err := r.run(ctx, r.opts.FFmpegBinary, args...); err != nil {
		_ = os.Remove(tmpPath)
		return "", services.Wrap(services.ErrExternalTool, "render", "assemble", "join segments", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", services.Wrap(services.ErrConfiguration, "render", "finalize", "move rendered video into place", err)
	}
	r.logger.Info("render complete",
		logging.String("output", outputPath),
		logging.Int("clips", len(segments)),
		logging.Int("subtitles", len(plan.Subtitles)),
		logging.Float64("timeline_seconds", plan.TotalDuration),
		logging.Bool("bgm", bgmPath != ""),
		logging.String(logging.FieldEventType, "render_complete"),
	)
	return outputPath, nil
}

func (r *Renderer) resolveSegment(ctx context.Context, clip timeline.Clip, workDir string) (segmentSpec, error) {
	spec := segmentSpec{audio: clip.AudioPath, target: clip.Target, stretch: 1}
	switch {
	case clip.VideoPath != "":
		spec.visual = clip.VideoPath
		spec.native = r.nativeDuration(ctx, clip)
		if factor, ok := timeline.StretchFactor(spec.native, clip.Target); ok {
			spec.stretch = factor
		} else if spec.native > 0 {
			r.logger.Debug("stretch out of range; trimming",
				logging.Int(logging.FieldScene, clip.Index),
				logging.Float64("native_seconds", spec.native),
				logging.Float64("target_seconds", clip.Target),
			)
		}
	case clip.ImagePath != "":
		spec.visual = clip.ImagePath
		spec.still = true
	default:
		path := filepath.Join(workDir, "placeholder.png")
		if err := writePlaceholder(path, r.opts.Width, r.opts.Height); err != nil {
			return segmentSpec{}, services.Wrap(services.ErrConfiguration, "render", "placeholder", "render placeholder frame", err)
		}
		spec.visual = path
		spec.still = true
	}
	return spec, nil
}

func (r *Renderer) nativeDuration(ctx context.Context, clip timeline.Clip) float64 {
	if r.prober == nil {
		return 0
	}
	d, err := r.prober.Duration(ctx, clip.VideoPath)
	if err != nil {
		logging.WarnWithContext(r.logger, "video duration lookup failed", "render_duration_failed",
			logging.Int(logging.FieldScene, clip.Index),
			logging.Error(err),
			logging.String(logging.FieldImpact, "clip is trimmed or held instead of stretched"),
		)
		return 0
	}
	return d
}

// musicBed returns <bgm_dir>/<style token>.mp3 when it exists, so "Film Noir"
// looks for film_noir.mp3.
func (r *Renderer) musicBed(style string) string {
	style = strings.TrimSpace(style)
	if style == "" || strings.TrimSpace(r.opts.BGMDir) == "" || r.opts.BGMVolume <= 0 {
		return ""
	}
	path := filepath.Join(r.opts.BGMDir, textutil.SanitizeToken(style)+".mp3")
	if _, err := os.Stat(path); err != nil {
		r.logger.Info("no background music for style",
			logging.String("bgm_style", style),
			logging.String("path", path),
		)
		return ""
	}
	return path
}

// shiftedCues moves each subtitle by the overlap accumulated before its clip so
// text stays aligned with the crossfaded picture. Blank subtitles have nothing
// to show and are left out of the SRT.
func shiftedCues(plan timeline.RenderPlan, targets []float64) []srtCue {
	starts := renderedStarts(targets, fadeDurations(targets))
	shift := make(map[int]float64, len(plan.Clips))
	for i, clip := range plan.Clips {
		shift[clip.Index] = clip.Start - starts[i]
	}
	cues := make([]srtCue, 0, len(plan.Subtitles))
	for _, sub := range plan.Subtitles {
		if strings.TrimSpace(sub.Text) == "" {
			continue
		}
		d := shift[sub.Index]
		cues = append(cues, srtCue{start: sub.Start - d, end: sub.End - d, text: sub.Text})
	}
	for i := 0; i+1 < len(cues); i++ {
		if cues[i].end > cues[i+1].start {
			cues[i].end = cues[i+1].start
		}
	}
	return cues
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stderr strings.Builder
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
