package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	BGMDir    string `toml:"bgm_dir"`
}

// LLM contains the language/vision model connection settings used for style,
// storyboard, prompt optimization and image validation.
type LLM struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	VisionModel    string `toml:"vision_model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Image contains the text-to-image backend settings.
type Image struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Size           string `toml:"size"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Video contains the image-to-video backend settings.
type Video struct {
	APIKey              string `toml:"api_key"`
	BaseURL             string `toml:"base_url"`
	Model               string `toml:"model"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
}

// TTS contains the speech synthesis backend settings.
type TTS struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Voice          string `toml:"voice"`
	Format         string `toml:"format"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Render contains ffmpeg output settings.
type Render struct {
	FFmpegBinary  string  `toml:"ffmpeg_binary"`
	FFprobeBinary string  `toml:"ffprobe_binary"`
	Width         int     `toml:"width"`
	Height        int     `toml:"height"`
	FPS           int     `toml:"fps"`
	VideoCodec    string  `toml:"video_codec"`
	AudioCodec    string  `toml:"audio_codec"`
	Preset        string  `toml:"preset"`
	BGMVolume     float64 `toml:"bgm_volume"`
	MinFreeGiB    int     `toml:"min_free_gib"`
}

// Pipeline contains run-level behaviour switches.
type Pipeline struct {
	ForceExecute        bool   `toml:"force_execute"`
	AudioWorkers        int    `toml:"audio_workers"`
	VisualWorkers       int    `toml:"visual_workers"`
	DefaultStyle        string `toml:"default_style"`
	DefaultAspectRatio  string `toml:"default_aspect_ratio"`
	DefaultTargetLength string `toml:"default_target_length"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	RunCompleted   bool   `toml:"run_completed"`
	RunFailed      bool   `toml:"run_failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config is the full storyloom configuration, one TOML table per section.
type Config struct {
	Paths         Paths         `toml:"paths"`
	LLM           LLM           `toml:"llm"`
	Image         Image         `toml:"image"`
	Video         Video         `toml:"video"`
	TTS           TTS           `toml:"tts"`
	Render        Render        `toml:"render"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

const projectConfigName = "storyloom.toml"

// Load reads configuration on top of Default and normalizes and validates the
// result. An empty path means the user config under ~/.config, then
// ./storyloom.toml. A missing file is not an error: the returned bool reports
// whether a file was read, and the returned path is where one would live.
func Load(path string) (*Config, string, bool, error) {
	resolved, exists, err := locate(path)
	if err != nil {
		return nil, "", false, err
	}
	cfg := Default()
	if exists {
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

// DefaultConfigPath is the per-user config location with ~ expanded.
func DefaultConfigPath() (string, error) {
	return ExpandPath(defaultConfigPath)
}

func locate(explicit string) (string, bool, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		p, err := ExpandPath(explicit)
		if err != nil {
			return "", false, err
		}
		found, err := isFile(p)
		return p, found, err
	}
	userPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{userPath, projectConfigName} {
		p, err := ExpandPath(candidate)
		if err != nil {
			return "", false, err
		}
		if found, _ := isFile(p); found {
			return p, true, nil
		}
	}
	return userPath, false, nil
}

func isFile(p string) (bool, error) {
	info, err := os.Stat(p)
	switch {
	case err == nil:
		return !info.IsDir(), nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat config: %w", err)
	}
}

// ExpandPath turns a leading ~ into the home directory and returns a cleaned
// absolute path. Empty input stays empty.
func ExpandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		p = filepath.Join(home, p[1:])
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", p, err)
	}
	return abs, nil
}

// EnsureDirectories creates the work, output and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// RunStorePath is the run history database under the log directory.
func (c *Config) RunStorePath() string {
	return filepath.Join(c.Paths.LogDir, "runs.db")
}

// LLMConfigured reports whether a language model key is set.
func (c *Config) LLMConfigured() bool { return allSet(c.LLM.APIKey) }

// ImageConfigured reports whether the text-to-image backend has a key and endpoint.
func (c *Config) ImageConfigured() bool { return allSet(c.Image.APIKey, c.Image.BaseURL) }

// VideoConfigured reports whether the image-to-video backend has a key and endpoint.
func (c *Config) VideoConfigured() bool { return allSet(c.Video.APIKey, c.Video.BaseURL) }

// TTSConfigured reports whether the speech backend has a key and endpoint.
func (c *Config) TTSConfigured() bool { return allSet(c.TTS.APIKey, c.TTS.BaseURL) }

func allSet(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// CreateSample writes the annotated sample configuration to path.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
