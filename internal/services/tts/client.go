// Package tts synthesizes scene narration through an OpenAI-compatible
// /audio/speech endpoint and reports how long each clip runs.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"storyloom/internal/services"
	"storyloom/internal/services/retry"
)

const (
	defaultTimeout  = 60 * time.Second
	defaultFormat   = "mp3"
	defaultAttempts = 3
	defaultBaseWait = time.Second
	defaultMaxWait  = 10 * time.Second
	// maxAudioBytes bounds one synthesized clip.
	maxAudioBytes = 64 << 20
	// MinEstimatedSeconds is the floor applied to word-count estimates.
	MinEstimatedSeconds = 1.5
	// SecondsPerWord is the narration pace assumed when a clip cannot be measured.
	SecondsPerWord = 0.4
)

// DurationProber measures media duration in seconds.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Config holds endpoint settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
	Format  string
	Timeout time.Duration
}

// Client writes one audio file per scene into its output directory.
type Client struct {
	cfg        Config
	outDir     string
	httpClient *http.Client
	prober     DurationProber
	retry      retry.Policy
	maxBytes   int64
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts caps the number of requests per clip.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) { c.retry.Attempts = attempts }
}

// WithRetryBackoff sets the first and the largest wait between attempts.
func WithRetryBackoff(base, maxWait time.Duration) Option {
	return func(c *Client) {
		c.retry.BaseWait = base
		c.retry.MaxWait = maxWait
	}
}

// WithProber measures synthesized clips instead of estimating their length.
func WithProber(prober DurationProber) Option {
	return func(c *Client) {
		c.prober = prober
	}
}

// NewClient constructs a speech client that writes into outDir.
func NewClient(cfg Config, outDir string, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.Format = strings.TrimSpace(cfg.Format)
	if cfg.Format == "" {
		cfg.Format = defaultFormat
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{
		cfg:        cfg,
		outDir:     outDir,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retry:      retry.Policy{Attempts: defaultAttempts, BaseWait: defaultBaseWait, MaxWait: defaultMaxWait},
		maxBytes:   maxAudioBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
	Instructions   string `json:"instructions,omitempty"`
}

// Synthesize renders text for a scene and returns the audio path and its
// duration in seconds. The emotion tag is forwarded as delivery instructions.
func (c *Client) Synthesize(ctx context.Context, sceneIndex int, text, emotion string) (string, float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", 0, services.Wrap(services.ErrValidation, "tts", "synthesize", fmt.Sprintf("scene %d has no narration", sceneIndex), nil)
	}
	if c.cfg.APIKey == "" {
		return "", 0, services.Wrap(services.ErrConfiguration, "tts", "synthesize", "api key required", nil)
	}
	payload := speechRequest{
		Model:          c.cfg.Model,
		Input:          text,
		Voice:          c.cfg.Voice,
		ResponseFormat: c.cfg.Format,
	}
	if emotion = strings.TrimSpace(emotion); emotion != "" {
		payload.Instructions = "Speak in a " + emotion + " tone."
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", 0, fmt.Errorf("tts: encode body: %w", err)
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "audio", "speech")
	if err != nil {
		return "", 0, fmt.Errorf("tts: build url: %w", err)
	}

	audio, tries, err := retry.Do(ctx, c.retry, func() ([]byte, error) {
		return c.post(ctx, endpoint, encoded)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", 0, ctxErr
		}
		message := "request failed"
		if tries > 1 {
			message = fmt.Sprintf("failed after %d attempts", tries)
		}
		var status *retry.StatusError
		if errors.As(err, &status) || errors.Is(err, errEmptyAudio) || errors.Is(err, errAudioTooLarge) {
			return "", 0, services.Wrap(services.ErrExternalTool, "tts", "synthesize", message, err)
		}
		return "", 0, services.Wrap(services.ErrTransient, "tts", "synthesize", message, err)
	}

	if err := os.MkdirAll(c.outDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("tts: create dir: %w", err)
	}
	path := filepath.Join(c.outDir, fmt.Sprintf("%d.%s", sceneIndex, c.cfg.Format))
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", 0, fmt.Errorf("tts: write audio: %w", err)
	}
	return path, c.duration(ctx, path, text), nil
}

var (
	errEmptyAudio    = errors.New("empty audio payload")
	errAudioTooLarge = errors.New("audio payload too large")
)

func (c *Client) post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	audio, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, retry.NewStatusError(resp, audio[:min(len(audio), 2048)])
	}
	switch {
	case int64(len(audio)) > c.maxBytes:
		return nil, fmt.Errorf("%w: over %d bytes", errAudioTooLarge, c.maxBytes)
	case len(audio) == 0:
		return nil, retry.Transient(errEmptyAudio)
	}
	return audio, nil
}

func (c *Client) duration(ctx context.Context, path, text string) float64 {
	if c.prober != nil {
		if d, err := c.prober.Duration(ctx, path); err == nil && d > 0 {
			return d
		}
	}
	return EstimateDuration(text)
}

// EstimateDuration approximates narration length from its word count.
func EstimateDuration(text string) float64 {
	return math.Max(MinEstimatedSeconds, float64(len(strings.Fields(text)))*SecondsPerWord)
}
