package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"storyloom/internal/services/retry"
)

const maxResponseBytes = 8 << 20

// emptyAnswerError is a 2xx reply without usable content.
type emptyAnswerError struct {
	Finish  string
	Refusal string
	Snippet string
}

func (e *emptyAnswerError) Error() string {
	return fmt.Sprintf("empty content (finish_reason=%q, refusal=%q, response_snippet=%s)",
		e.Finish, e.Refusal, e.Snippet)
}

func (c *Client) policy() retry.Policy {
	return retry.Policy{
		Attempts: c.attempts,
		BaseWait: c.baseWait,
		MaxWait:  c.maxWait,
		Notify:   c.notify,
	}
}

// send posts req, retrying transient failures, and returns the answer text.
func (c *Client) send(ctx context.Context, op string, req chatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%s: encode request: %w", op, err)
	}
	content, tries, err := retry.Do(ctx, c.policy(), func() (string, error) {
		return c.post(ctx, body)
	})
	if err != nil {
		if tries > 1 {
			return "", fmt.Errorf("%s: failed after %d attempts: %w", op, tries, err)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return content, nil
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request (timeout=%s): %w", c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", retry.NewStatusError(resp, raw)
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("api error: %s", strings.TrimSpace(decoded.Error.Message))
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("empty choices")
	}
	content, finish, refusal := decoded.answer()
	if content == "" {
		return "", retry.Transient(&emptyAnswerError{Finish: finish, Refusal: refusal, Snippet: snippet(string(raw))})
	}
	return content, nil
}
