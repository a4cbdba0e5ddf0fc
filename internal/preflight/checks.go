package preflight

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"storyloom/internal/config"
	"storyloom/internal/deps"
	"storyloom/internal/services/gemini"
	"storyloom/internal/services/llm"
)

const healthTimeout = 30 * time.Second

// CheckLLM sends one health prompt to the configured language model. Retries
// are disabled so a bad key fails fast.
func CheckLLM(ctx context.Context, name string, cfg *config.Config) Result {
	if !cfg.LLMConfigured() {
		return Result{Name: name, Warning: true, Detail: "API key missing (mock storyboard, validation disabled)"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	if cfg.LLM.Provider == config.ProviderGemini {
		client, err := gemini.NewClient(checkCtx, gemini.Config{APIKey: cfg.LLM.APIKey, Model: cfg.LLM.Model})
		if err != nil {
			return Result{Name: name, Detail: err.Error()}
		}
		defer client.Close()
		if _, err := client.CompleteJSON(checkCtx, "You must respond with JSON only.", `Respond with {"ok":true}`); err != nil {
			return Result{Name: name, Detail: summarizeLLMError(err)}
		}
		return Result{Name: name, Passed: true, Detail: "Gemini reachable"}
	}

	client := llm.NewClient(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Referer: cfg.LLM.Referer,
		Title:   cfg.LLM.Title,
	}, llm.WithRetryMaxAttempts(1))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeLLMError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckBackends reports which generation backends are configured. Missing
// backends are warnings: the affected scenes degrade instead of failing.
func CheckBackends(cfg *config.Config) []Result {
	check := func(name string, ok bool, missing string) Result {
		if ok {
			return Result{Name: name, Passed: true, Detail: "configured"}
		}
		return Result{Name: name, Warning: true, Detail: missing}
	}
	return []Result{
		check("Image backend", cfg.ImageConfigured(), "not configured (scenes render placeholder frames)"),
		check("Video backend", cfg.VideoConfigured(), "not configured (scenes render as stills)"),
		check("Speech backend", cfg.TTSConfigured(), "not configured (scenes are silent)"),
	}
}

// CheckDirectoryAccess fails unless path is a directory the current user can
// list and write into.
func CheckDirectoryAccess(name, path string) Result {
	fail := func(format string, args ...any) Result {
		return Result{Name: name, Detail: path + " (" + fmt.Sprintf(format, args...) + ")"}
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fail("missing")
	case err != nil:
		return fail("stat: %v", err)
	case !info.IsDir():
		return fail("not a directory")
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fail("access denied: %v", err)
	}
	return Result{Name: name, Passed: true, Detail: path + " (writable)"}
}

// CheckFreeSpace fails when the filesystem holding path has less than minGiB free.
func CheckFreeSpace(name, path string, minGiB int) Result {
	free, err := FreeBytes(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	freeGiB := float64(free) / (1 << 30)
	detail := fmt.Sprintf("%.1f GiB free", freeGiB)
	if minGiB > 0 && freeGiB < float64(minGiB) {
		return Result{Name: name, Detail: fmt.Sprintf("%s (need %d GiB)", detail, minGiB)}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// FreeBytes returns the bytes available to unprivileged users on path's filesystem.
func FreeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// CheckSystemDeps evaluates the external binaries for the given config.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.Requirements(cfg))
}

// summarizeLLMError turns timeouts into a short hint and passes other errors through.
func summarizeLLMError(err error) string {
	var netErr net.Error
	timedOut := errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
	if timedOut {
		return "no answer within the health check deadline"
	}
	return err.Error()
}
