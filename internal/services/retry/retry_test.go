package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestDoRetriesRetryableStatus(t *testing.T) {
	var waits []time.Duration
	p := Policy{
		Attempts: 4,
		BaseWait: time.Millisecond,
		MaxWait:  3 * time.Millisecond,
		Notify:   func(_ error, d time.Duration) { waits = append(waits, d) },
	}
	calls := 0
	out, tries, err := Do(context.Background(), p, func() (string, error) {
		calls++
		if calls < 4 {
			return "", &StatusError{Code: http.StatusBadGateway}
		}
		return "ok", nil
	})
	if err != nil || out != "ok" || tries != 4 {
		t.Fatalf("Do = %q, %d, %v", out, tries, err)
	}
	want := []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}
	if len(waits) != len(want) {
		t.Fatalf("waits = %v, want %v", waits, want)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Fatalf("waits = %v, want %v", waits, want)
		}
	}
}

func TestDoUsesCappedRetryAfterHint(t *testing.T) {
	var waits []time.Duration
	p := Policy{
		Attempts: 2,
		BaseWait: time.Millisecond,
		MaxWait:  20 * time.Millisecond,
		Notify:   func(_ error, d time.Duration) { waits = append(waits, d) },
	}
	_, tries, err := Do(context.Background(), p, func() (int, error) {
		return 0, &StatusError{Code: http.StatusTooManyRequests, Wait: time.Hour}
	})
	if err == nil || tries != 2 {
		t.Fatalf("expected two failed tries, got %d, %v", tries, err)
	}
	if len(waits) != 1 || waits[0] != 20*time.Millisecond {
		t.Fatalf("expected one wait capped at 20ms, got %v", waits)
	}
}

func TestDoStopsOnPermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"client status", &StatusError{Code: http.StatusBadRequest}},
		{"plain error", errors.New("decode response")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, tries, err := Do(context.Background(), Policy{Attempts: 5}, func() (bool, error) {
				return false, tt.err
			})
			if tries != 1 || !errors.Is(err, tt.err) {
				t.Fatalf("expected one try returning %v, got %d, %v", tt.err, tries, err)
			}
		})
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	empty := errors.New("empty body")
	calls := 0
	_, tries, err := Do(context.Background(), Policy{Attempts: 3}, func() (int, error) {
		calls++
		if calls == 1 {
			return 0, Transient(empty)
		}
		return 7, nil
	})
	if err != nil || tries != 2 {
		t.Fatalf("expected success on second try, got %d, %v", tries, err)
	}
	if Transient(nil) != nil {
		t.Fatal("Transient(nil) must be nil")
	}
	if !errors.Is(Transient(empty), empty) {
		t.Fatal("Transient must unwrap to its cause")
	}
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	_, tries, err := Do(ctx, Policy{Attempts: 5, BaseWait: time.Hour, MaxWait: time.Hour}, func() (int, error) {
		cancel()
		return 0, Transient(errors.New("empty body"))
	})
	if err == nil || tries != 1 {
		t.Fatalf("expected a single try after cancellation, got %d, %v", tries, err)
	}
}

func TestStatusErrorRetryable(t *testing.T) {
	for code, want := range map[int]bool{
		http.StatusRequestTimeout:      true,
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusServiceUnavailable:  true,
		http.StatusBadRequest:          false,
		http.StatusUnauthorized:        false,
		http.StatusNotFound:            false,
	} {
		if got := (&StatusError{Code: code}).Retryable(); got != want {
			t.Fatalf("Retryable(%d) = %v, want %v", code, got, want)
		}
	}
}

func TestAfter(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"-2", 0},
		{now.Add(5 * time.Second).Format(http.TimeFormat), 5 * time.Second},
		{"soon", 0},
	}
	for _, tc := range tests {
		if got := After(tc.value, now); got != tc.want {
			t.Fatalf("After(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}
