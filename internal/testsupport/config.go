package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"storyloom/internal/config"
)

// ConfigOption adjusts a generated test config. base is the temp directory
// holding every configured path.
type ConfigOption func(t testing.TB, base string, cfg *config.Config)

// NewConfig returns defaults rooted in a fresh temp directory, with no backend
// credentials and notifications off, so every collaborator runs on its
// fallback.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.Paths{
		WorkDir:   filepath.Join(base, "work"),
		OutputDir: filepath.Join(base, "output"),
		LogDir:    filepath.Join(base, "logs"),
		BGMDir:    filepath.Join(base, "bgm"),
	}
	cfg.Notifications.NtfyTopic = ""
	for _, opt := range opts {
		opt(t, base, &cfg)
	}
	return &cfg
}

// WithStubbedBinaries puts no-op executables named names (ffmpeg and ffprobe
// by default) in <base>/bin and prepends that directory to PATH for the test.
func WithStubbedBinaries(names ...string) ConfigOption {
	if len(names) == 0 {
		names = []string{"ffmpeg", "ffprobe"}
	}
	return func(t testing.TB, base string, _ *config.Config) {
		t.Helper()
		bin := filepath.Join(base, "bin")
		if err := os.MkdirAll(bin, 0o755); err != nil {
			t.Fatalf("create %s: %v", bin, err)
		}
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(bin, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
				t.Fatalf("write stub %s: %v", name, err)
			}
		}
		t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir is the temp directory behind a config from NewConfig.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
