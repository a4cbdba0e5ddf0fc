package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"storyloom/internal/config"
)

func clearBackendEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LLM_API_KEY", "OPENAI_API_KEY", "OPENROUTER_API_KEY", "GEMINI_API_KEY",
		"IMAGE_API_KEY", "DASHSCOPE_API_KEY", "IMAGE_API_BASE", "IMAGE_MODEL_NAME",
		"VIDEO_API_KEY", "AUDIO_API_KEY", "AUDIO_MODEL_NAME", "AUDIO_VOICE",
		"FORCE_EXECUTE", "NTFY_TOPIC",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	clearBackendEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantWork := filepath.Join(tempHome, ".local", "share", "storyloom", "runs")
	if cfg.Paths.WorkDir != wantWork {
		t.Fatalf("unexpected work dir: got %q want %q", cfg.Paths.WorkDir, wantWork)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "Videos", "storyloom") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if cfg.Render.Width != 1280 || cfg.Render.Height != 720 || cfg.Render.FPS != 24 {
		t.Fatalf("unexpected render defaults: %+v", cfg.Render)
	}
	if cfg.Pipeline.ForceExecute {
		t.Fatal("expected force execute disabled by default")
	}
	if cfg.Pipeline.AudioWorkers != 1 || cfg.Pipeline.VisualWorkers != 1 {
		t.Fatalf("expected sequential workers by default, got %+v", cfg.Pipeline)
	}
	if cfg.LLMConfigured() {
		t.Fatal("expected llm to be unconfigured without keys")
	}
	if cfg.LLM.VisionModel != cfg.LLM.Model {
		t.Fatalf("expected vision model to default to model, got %q", cfg.LLM.VisionModel)
	}
	if cfg.RunStorePath() != filepath.Join(cfg.Paths.LogDir, "runs.db") {
		t.Fatalf("unexpected run store path %q", cfg.RunStorePath())
	}
}

func TestLoadUsesEnvironmentFallbacks(t *testing.T) {
	clearBackendEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("IMAGE_API_KEY", "img-key")
	t.Setenv("IMAGE_API_BASE", "https://images.example/api/v1/")
	t.Setenv("AUDIO_API_KEY", "tts-key")
	t.Setenv("FORCE_EXECUTE", "true")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Fatalf("expected llm key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Image.BaseURL != "https://images.example/api/v1" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Image.BaseURL)
	}
	if cfg.Video.APIKey != "img-key" || cfg.Video.BaseURL != "https://images.example/api/v1" {
		t.Fatalf("expected video backend to inherit image settings, got %+v", cfg.Video)
	}
	if !cfg.ImageConfigured() || !cfg.VideoConfigured() {
		t.Fatal("expected image and video backends configured")
	}
	if cfg.TTSConfigured() {
		t.Fatal("expected tts unconfigured without base url")
	}
	if !cfg.Pipeline.ForceExecute {
		t.Fatal("expected FORCE_EXECUTE to enable force execute")
	}
}

func TestLoadGeminiProviderUsesGeminiKeyAndModel(t *testing.T) {
	clearBackendEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Setenv("OPENAI_API_KEY", "sk-ignored")

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[llm]\nprovider = \"Gemini\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected explicit path to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.LLM.Provider != config.ProviderGemini {
		t.Fatalf("expected provider normalized to gemini, got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.APIKey != "gem-key" {
		t.Fatalf("expected gemini key, got %q", cfg.LLM.APIKey)
	}
	if strings.Contains(cfg.LLM.Model, "/") {
		t.Fatalf("expected native gemini model name, got %q", cfg.LLM.Model)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"provider", func(c *config.Config) { c.LLM.Provider = "claude" }, "llm.provider"},
		{"odd width", func(c *config.Config) { c.Render.Width = 1279 }, "even"},
		{"zero fps", func(c *config.Config) { c.Render.FPS = 0 }, "render.fps"},
		{"bgm volume", func(c *config.Config) { c.Render.BGMVolume = 2 }, "bgm_volume"},
		{"aspect", func(c *config.Config) { c.Pipeline.DefaultAspectRatio = "wide" }, "aspect_ratio"},
		{"workers", func(c *config.Config) { c.Pipeline.VisualWorkers = 64 }, "workers"},
		{"level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %v", tc.want, err)
			}
		})
	}
}

func TestSampleConfigParsesAndValidates(t *testing.T) {
	clearBackendEnv(t)
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample config is not valid toml: %v", err)
	}
	if decoded.Render.Width != 1280 {
		t.Fatalf("expected sample render width 1280, got %d", decoded.Render.Width)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.OutputDir = filepath.Join(base, "out")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.WorkDir, cfg.Paths.OutputDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}

func TestValidAspectRatio(t *testing.T) {
	for value, want := range map[string]bool{"16:9": true, " 9:16 ": true, "4x3": false, "": false} {
		if got := config.ValidAspectRatio(value); got != want {
			t.Fatalf("ValidAspectRatio(%q) = %v, want %v", value, got, want)
		}
	}
}
