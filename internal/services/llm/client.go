package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"
	defaultTimeout  = 15 * time.Second
	defaultAttempts = 5
	defaultBaseWait = time.Second
	defaultMaxWait  = 10 * time.Second
	defaultMIMEType = "image/jpeg"
)

// Config holds the credentials and model selection for a chat backend.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	VisionModel    string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// Client talks to an OpenAI-compatible chat completions endpoint and always
// asks for JSON output.
type Client struct {
	cfg        Config
	httpClient *http.Client

	attempts int
	baseWait time.Duration
	maxWait  time.Duration
	notify   func(error, time.Duration)
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

// WithRetryMaxAttempts caps the number of requests per call. Values below one
// disable retries.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) { c.attempts = attempts }
}

// WithRetryBackoff sets the first and the largest wait between attempts.
func WithRetryBackoff(base, maxWait time.Duration) Option {
	return func(c *Client) {
		c.baseWait = base
		c.maxWait = maxWait
	}
}

// WithRetryNotify registers a callback invoked before each wait.
func WithRetryNotify(fn func(err error, wait time.Duration)) Option {
	return func(c *Client) { c.notify = fn }
}

// NewClient builds a client. An empty BaseURL targets OpenRouter.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.VisionModel = strings.TrimSpace(cfg.VisionModel)
	cfg.Referer = strings.TrimSpace(cfg.Referer)
	cfg.Title = strings.TrimSpace(cfg.Title)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultEndpoint
	}

	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		attempts:   defaultAttempts,
		baseWait:   defaultBaseWait,
		maxWait:    defaultMaxWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CompleteJSON sends a system and a user prompt and returns the model's raw
// JSON answer.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	const op = "llm complete"
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	switch {
	case systemPrompt == "":
		return "", errors.New(op + ": system prompt required")
	case userPrompt == "":
		return "", errors.New(op + ": user prompt required")
	case c.cfg.APIKey == "":
		return "", errors.New(op + ": api key required")
	}
	return c.complete(ctx, op, c.cfg.Model, systemPrompt, userPrompt)
}

// CompleteJSONWithImage attaches an image to the user turn as a base64 data
// URL and returns the vision model's raw JSON answer.
func (c *Client) CompleteJSONWithImage(ctx context.Context, systemPrompt, userPrompt string, image []byte, mimeType string) (string, error) {
	const op = "llm vision"
	systemPrompt = strings.TrimSpace(systemPrompt)
	switch {
	case systemPrompt == "":
		return "", errors.New(op + ": system prompt required")
	case len(image) == 0:
		return "", errors.New(op + ": image required")
	case c.cfg.APIKey == "":
		return "", errors.New(op + ": api key required")
	}
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		mimeType = defaultMIMEType
	}
	user := []contentPart{
		{Type: "text", Text: "Original prompt: " + strings.TrimSpace(userPrompt)},
		{Type: "image_url", ImageURL: &imageURL{
			URL: "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image),
		}},
	}
	return c.complete(ctx, op, c.visionModel(), systemPrompt, user)
}

// HealthCheck asks the model for a fixed JSON document.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return errors.New("llm health: api key required")
	}
	content, err := c.complete(ctx, "llm health", c.cfg.Model,
		"You must respond with JSON only.", `Respond with {"ok":true}`)
	if err != nil {
		return err
	}
	var ping struct {
		OK bool `json:"ok"`
	}
	if err := DecodeJSON(content, &ping); err != nil {
		return fmt.Errorf("llm health: parse payload: %w", err)
	}
	if !ping.OK {
		return errors.New("llm health: unexpected response")
	}
	return nil
}

func (c *Client) visionModel() string {
	if c.cfg.VisionModel != "" {
		return c.cfg.VisionModel
	}
	return c.cfg.Model
}

func (c *Client) complete(ctx context.Context, op, model, system string, user any) (string, error) {
	req := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: responseFormat{Type: "json_object"},
	}
	return c.send(ctx, op, req)
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role string `json:"role"`
	// Content is a string for text turns and []contentPart for image turns.
	Content any `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type chatChoice struct {
	Message      chatReply `json:"message"`
	Delta        chatReply `json:"delta"`
	Text         string    `json:"text"`
	FinishReason string    `json:"finish_reason"`
}

type chatReply struct {
	Content string `json:"content"`
	Refusal string `json:"refusal"`
}

// answer returns the first non-empty text across choices. Some providers fill
// delta or text instead of message even for non-streaming calls.
func (r chatResponse) answer() (content, finish, refusal string) {
	for _, choice := range r.Choices {
		if finish == "" {
			finish = strings.TrimSpace(choice.FinishReason)
		}
		if refusal == "" {
			refusal = firstNonBlank(choice.Message.Refusal, choice.Delta.Refusal)
		}
		if text := firstNonBlank(choice.Message.Content, choice.Delta.Content, choice.Text); text != "" {
			return text, finish, refusal
		}
	}
	return "", finish, refusal
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
