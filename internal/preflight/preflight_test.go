package preflight

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"storyloom/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if r := CheckFreeSpace("disk", dir, 0); !r.Passed {
		t.Fatalf("expected pass with no minimum, got %s", r.Detail)
	}
	if r := CheckFreeSpace("disk", dir, 1<<30); r.Passed {
		t.Fatal("expected failure for an impossible minimum")
	}
	if r := CheckFreeSpace("disk", filepath.Join(dir, "missing"), 1); r.Passed {
		t.Fatal("expected failure for a missing path")
	}
}

func TestCheckLLMWithoutKeyIsWarning(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = ""
	result := CheckLLM(context.Background(), "LLM", &cfg)
	if result.Passed || !result.Warning {
		t.Fatalf("expected warning, got %+v", result)
	}
}

func TestCheckLLMHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": `{"ok":true}`}}},
		})
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.LLM.Provider = config.ProviderOpenAI
	cfg.LLM.APIKey = "key"
	cfg.LLM.BaseURL = server.URL
	result := CheckLLM(context.Background(), "LLM", &cfg)
	if !result.Passed {
		t.Fatalf("expected pass, got %+v", result)
	}
}

func TestCheckLLMUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.LLM.Provider = config.ProviderOpenAI
	cfg.LLM.APIKey = "bad"
	cfg.LLM.BaseURL = server.URL
	result := CheckLLM(context.Background(), "LLM", &cfg)
	if result.Passed || result.Warning {
		t.Fatalf("expected blocking failure, got %+v", result)
	}
}

func TestBlockingSkipsWarnings(t *testing.T) {
	results := []Result{
		{Name: "ok", Passed: true},
		{Name: "warn", Warning: true},
		{Name: "fail"},
	}
	blocking := Blocking(results)
	if len(blocking) != 1 || blocking[0].Name != "fail" {
		t.Fatalf("unexpected blocking set %+v", blocking)
	}
}

func TestCheckBackendsUnconfigured(t *testing.T) {
	cfg := config.Default()
	cfg.Image = config.Image{}
	cfg.Video = config.Video{}
	cfg.TTS = config.TTS{}
	for _, r := range CheckBackends(&cfg) {
		if r.Passed || !r.Warning {
			t.Fatalf("expected warning for %s, got %+v", r.Name, r)
		}
	}
}
