package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storyloom/internal/config"
)

const (
	userAgent      = "storyloom/0.1"
	defaultTimeout = 10 * time.Second
	errorBodyLimit = 2048
)

// Service defines the notification surface exposed to the CLI.
type Service interface {
	NotifyRunCompleted(ctx context.Context, topic, finalPath string, scenes int, elapsed time.Duration) error
	NotifyRunFailed(ctx context.Context, topic string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService returns an ntfy publisher for notifications.ntfy_topic, or a
// service that does nothing when the topic is empty.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return disabled{}
	}
	settings := cfg.Notifications
	target := strings.TrimSpace(settings.NtfyTopic)
	if target == "" {
		return disabled{}
	}
	timeout := time.Duration(settings.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ntfy{
		url:        target,
		client:     &http.Client{Timeout: timeout},
		onComplete: settings.RunCompleted,
		onFailure:  settings.RunFailed,
	}
}

// note is one ntfy message. Title, tags and priority travel as headers.
type note struct {
	title    string
	body     string
	priority string
	tags     []string
}

func completedNote(topic, finalPath string, scenes int, elapsed time.Duration) note {
	lines := []string{
		"Video ready: " + strings.TrimSpace(topic),
		fmt.Sprintf("%d scenes in %s", scenes, max(elapsed.Round(time.Second), 0)),
	}
	if finalPath = strings.TrimSpace(finalPath); finalPath != "" {
		lines = append(lines, "File: "+finalPath)
	}
	return note{
		title:    "storyloom - Run Complete",
		body:     strings.Join(lines, "\n"),
		priority: "high",
		tags:     []string{"storyloom", "run", "completed"},
	}
}

func failedNote(topic string, err error) note {
	reason := "unknown"
	if err != nil {
		reason = strings.TrimSpace(err.Error())
	}
	subject := "Run failed"
	if topic = strings.TrimSpace(topic); topic != "" {
		subject += " for " + topic
	}
	return note{
		title:    "storyloom - Error",
		body:     subject + ": " + reason,
		priority: "high",
		tags:     []string{"storyloom", "error", "alert"},
	}
}

type ntfy struct {
	url        string
	client     *http.Client
	onComplete bool
	onFailure  bool
}

func (n *ntfy) NotifyRunCompleted(ctx context.Context, topic, finalPath string, scenes int, elapsed time.Duration) error {
	if !n.onComplete {
		return nil
	}
	return n.publish(ctx, completedNote(topic, finalPath, scenes, elapsed))
}

func (n *ntfy) NotifyRunFailed(ctx context.Context, topic string, err error) error {
	if !n.onFailure {
		return nil
	}
	return n.publish(ctx, failedNote(topic, err))
}

func (n *ntfy) TestNotification(ctx context.Context) error {
	return n.publish(ctx, note{
		title:    "storyloom - Test",
		body:     "Notification system test",
		priority: "low",
		tags:     []string{"storyloom", "test"},
	})
}

func (n *ntfy) publish(ctx context.Context, msg note) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	headers := map[string]string{
		"User-Agent":   userAgent,
		"Content-Type": "text/plain; charset=utf-8",
		"Title":        msg.title,
		"Priority":     msg.priority,
		"Tags":         strings.Join(msg.tags, ","),
	}
	for key, value := range headers {
		if value != "" {
			req.Header.Set(key, value)
		}
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// disabled is used when no ntfy topic is configured.
type disabled struct{}

func (disabled) NotifyRunCompleted(context.Context, string, string, int, time.Duration) error {
	return nil
}

func (disabled) NotifyRunFailed(context.Context, string, error) error { return nil }

func (disabled) TestNotification(context.Context) error { return nil }
