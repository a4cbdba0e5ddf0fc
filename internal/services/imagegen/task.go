package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"storyloom/internal/services"
)

const (
	defaultHTTPTimeout  = 60 * time.Second
	defaultPollInterval = 3 * time.Second
	defaultTaskTimeout  = 5 * time.Minute
)

// Status is a task lifecycle state as reported by the backend.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusCanceled  Status = "CANCELED"
	StatusUnknown   Status = "UNKNOWN"
)

// IsTerminal reports whether polling should stop.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled, StatusUnknown:
		return true
	default:
		return false
	}
}

// Config holds endpoint settings shared by the image and video clients.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Size is the image resolution in the backend's "W*H" form.
	Size         string
	Timeout      time.Duration
	PollInterval time.Duration
}

// Option customizes a task client.
type Option func(*taskClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *taskClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithSleeper overrides how poll waits are performed (useful for tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(c *taskClient) {
		if sleeper != nil {
			c.sleep = sleeper
		}
	}
}

type taskClient struct {
	cfg        Config
	httpClient *http.Client
	sleep      func(context.Context, time.Duration) error
}

func newTaskClient(cfg Config, opts []Option) *taskClient {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTaskTimeout
	}
	c := &taskClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type taskRequest struct {
	Model      string         `json:"model"`
	Input      map[string]any `json:"input"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type taskEnvelope struct {
	RequestID string     `json:"request_id"`
	Code      string     `json:"code"`
	Message   string     `json:"message"`
	Output    taskOutput `json:"output"`
}

type taskOutput struct {
	TaskID       string       `json:"task_id"`
	TaskStatus   Status       `json:"task_status"`
	Code         string       `json:"code"`
	Message      string       `json:"message"`
	Results      []taskResult `json:"results"`
	VideoURL     string       `json:"video_url"`
	ActualPrompt string       `json:"actual_prompt"`
}

type taskResult struct {
	URL          string `json:"url"`
	ActualPrompt string `json:"actual_prompt"`
	Code         string `json:"code"`
	Message      string `json:"message"`
}

func (c *taskClient) ready() error {
	if c.cfg.APIKey == "" || c.cfg.BaseURL == "" {
		return services.Wrap(services.ErrConfiguration, "imagegen", "configure", "api key and base url are required", nil)
	}
	return nil
}

// run submits a task and blocks until it reaches a terminal status.
func (c *taskClient) run(ctx context.Context, servicePath string, req taskRequest) (taskOutput, error) {
	if err := c.ready(); err != nil {
		return taskOutput{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	taskID, err := c.submit(ctx, servicePath, req)
	if err != nil {
		return taskOutput{}, err
	}
	for {
		out, err := c.poll(ctx, taskID)
		if err != nil {
			return taskOutput{}, err
		}
		if out.TaskStatus.IsTerminal() {
			if out.TaskStatus != StatusSucceeded {
				return out, services.Wrap(services.ErrExternalTool, "imagegen", "task "+taskID,
					fmt.Sprintf("status %s: %s", out.TaskStatus, firstNonEmpty(out.Message, out.Code)), nil)
			}
			return out, nil
		}
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return taskOutput{}, services.Wrap(services.ErrTimeout, "imagegen", "task "+taskID, "timed out waiting for result", err)
			}
			return taskOutput{}, err
		}
	}
}

func (c *taskClient) submit(ctx context.Context, servicePath string, req taskRequest) (string, error) {
	req.Model = c.cfg.Model
	encoded, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("imagegen submit: encode body: %w", err)
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, servicePath)
	if err != nil {
		return "", fmt.Errorf("imagegen submit: build url: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("imagegen submit: new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-DashScope-Async", "enable")
	var env taskEnvelope
	if err := c.do(httpReq, &env); err != nil {
		return "", fmt.Errorf("imagegen submit: %w", err)
	}
	if strings.TrimSpace(env.Output.TaskID) == "" {
		return "", services.Wrap(services.ErrExternalTool, "imagegen", "submit", "response carried no task id: "+firstNonEmpty(env.Message, env.Code), nil)
	}
	return env.Output.TaskID, nil
}

func (c *taskClient) poll(ctx context.Context, taskID string) (taskOutput, error) {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "tasks", taskID)
	if err != nil {
		return taskOutput{}, fmt.Errorf("imagegen poll: build url: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return taskOutput{}, fmt.Errorf("imagegen poll: new request: %w", err)
	}
	var env taskEnvelope
	if err := c.do(httpReq, &env); err != nil {
		return taskOutput{}, fmt.Errorf("imagegen poll %s: %w", taskID, err)
	}
	return env.Output, nil
}

func (c *taskClient) do(req *http.Request, target any) error {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return services.Wrap(services.ErrTransient, "imagegen", "http", "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		marker := services.ErrExternalTool
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			marker = services.ErrTransient
		}
		return services.Wrap(marker, "imagegen", "http", fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// download fetches rawURL into dir. When name is empty the URL's last path
// segment is used.
func (c *taskClient) download(ctx context.Context, rawURL, dir, name string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", services.Wrap(services.ErrExternalTool, "imagegen", "download", "result carried no url", nil)
	}
	if name == "" {
		name = fileNameFromURL(rawURL)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("imagegen download: create dir: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("imagegen download: new request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("imagegen download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", services.Wrap(services.ErrExternalTool, "imagegen", "download", fmt.Sprintf("http %d for %s", resp.StatusCode, rawURL), nil)
	}

	dest := filepath.Join(dir, name)
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("imagegen download: create file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("imagegen download: write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("imagegen download: close file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return "", fmt.Errorf("imagegen download: finalize: %w", err)
	}
	return dest, nil
}

func fileNameFromURL(rawURL string) string {
	if parsed, err := url.Parse(rawURL); err == nil {
		if unescaped, err := url.PathUnescape(parsed.Path); err == nil {
			if base := path.Base(unescaped); base != "" && base != "/" && base != "." {
				return base
			}
		}
	}
	return fmt.Sprintf("result_%d", time.Now().UnixNano())
}

// dataURL inlines a local file so it can be sent where the API expects a URL.
func dataURL(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filePath)))
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/jpeg"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return "no detail"
}
