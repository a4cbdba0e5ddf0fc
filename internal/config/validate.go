package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var aspectRatioPattern = regexp.MustCompile(`^\d+:\d+$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validateLLM() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("llm.provider must be %q or %q, got %q", ProviderOpenAI, ProviderGemini, c.LLM.Provider)
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateRender() error {
	if err := ensurePositiveMap(map[string]int{
		"render.width":  c.Render.Width,
		"render.height": c.Render.Height,
		"render.fps":    c.Render.FPS,
	}); err != nil {
		return err
	}
	if c.Render.Width%2 != 0 || c.Render.Height%2 != 0 {
		return errors.New("render.width and render.height must be even for yuv420p output")
	}
	if c.Render.BGMVolume < 0 || c.Render.BGMVolume > 1 {
		return errors.New("render.bgm_volume must be between 0 and 1")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.AudioWorkers > 16 || c.Pipeline.VisualWorkers > 16 {
		return errors.New("pipeline.audio_workers and pipeline.visual_workers must not exceed 16")
	}
	if !aspectRatioPattern.MatchString(c.Pipeline.DefaultAspectRatio) {
		return fmt.Errorf("pipeline.default_aspect_ratio must look like 16:9, got %q", c.Pipeline.DefaultAspectRatio)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
}

// ValidAspectRatio reports whether value uses the W:H form accepted for run parameters.
func ValidAspectRatio(value string) bool {
	return aspectRatioPattern.MatchString(strings.TrimSpace(value))
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
