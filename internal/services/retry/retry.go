// Package retry repeats calls to HTTP backends with exponential backoff,
// letting a server's Retry-After header choose the next wait.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds a retried call.
type Policy struct {
	// Attempts is the total number of calls. Values below one mean one.
	Attempts int
	// BaseWait doubles after every failure up to MaxWait.
	BaseWait time.Duration
	MaxWait  time.Duration
	// Notify, when set, is called before each wait.
	Notify func(err error, wait time.Duration)
}

// StatusError is a non-2xx reply. Wait carries the server's Retry-After hint.
type StatusError struct {
	Code int
	Body string
	Wait time.Duration
}

// NewStatusError describes a failed response whose body was already read.
func NewStatusError(resp *http.Response, body []byte) *StatusError {
	return &StatusError{
		Code: resp.StatusCode,
		Body: strings.TrimSpace(string(body)),
		Wait: After(resp.Header.Get("Retry-After"), time.Now()),
	}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}

// Retryable reports whether the status is worth another attempt: 408, 429
// and every 5xx.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusRequestTimeout ||
		e.Code == http.StatusTooManyRequests ||
		e.Code >= http.StatusInternalServerError
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable, for failures such as an empty 2xx body.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Do calls op until it succeeds, fails with a non-retryable error, the context
// ends or the attempts run out. It returns the number of calls made.
func Do[T any](ctx context.Context, p Policy, op func() (T, error)) (T, int, error) {
	hint := newHintBackOff(p.BaseWait, p.MaxWait)
	opts := []backoff.RetryOption{
		backoff.WithBackOff(hint),
		backoff.WithMaxTries(uint(max(p.Attempts, 1))),
	}
	if p.Notify != nil {
		opts = append(opts, backoff.WithNotify(p.Notify))
	}

	tries := 0
	out, err := backoff.Retry(ctx, func() (T, error) {
		tries++
		out, err := op()
		if err == nil {
			return out, nil
		}
		var zero T
		var status *StatusError
		switch {
		case errors.As(err, &status) && status.Retryable():
			hint.next = status.Wait
			return zero, err
		case retryable(ctx, err):
			return zero, err
		default:
			return zero, backoff.Permanent(err)
		}
	}, opts...)
	return out, tries, err
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var marked *transientError
	if errors.As(err, &marked) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// hintBackOff is exponential backoff that uses a pending Retry-After hint,
// capped at the maximum wait, for the next wait only.
type hintBackOff struct {
	exp  *backoff.ExponentialBackOff
	max  time.Duration
	next time.Duration
}

func newHintBackOff(base, maxWait time.Duration) *hintBackOff {
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     max(base, 0),
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         max(maxWait, 0),
	}
	exp.Reset()
	return &hintBackOff{exp: exp, max: max(maxWait, 0)}
}

func (b *hintBackOff) NextBackOff() time.Duration {
	if b.next > 0 {
		wait := min(b.next, b.max)
		b.next = 0
		return wait
	}
	return b.exp.NextBackOff()
}

func (b *hintBackOff) Reset() {
	b.next = 0
	b.exp.Reset()
}

// After reads a Retry-After header given as seconds or an HTTP date.
func After(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return max(time.Duration(secs)*time.Second, 0)
	}
	if when, err := http.ParseTime(value); err == nil {
		return max(when.Sub(now), 0)
	}
	return 0
}
