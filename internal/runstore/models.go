package runstore

import (
	"time"

	"storyloom/internal/storyboard"
)

// Status represents the lifecycle of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	// StatusNoOutput marks a run that finished without a video, for example
	// because rendering failed.
	StatusNoOutput Status = "no_output"
	StatusFailed   Status = "failed"
)

// Run is one recorded pipeline invocation.
type Run struct {
	ID           string
	Topic        string
	Params       storyboard.Params
	Status       Status
	FinalPath    string
	ErrorMessage string
	ErrorKind    string
	Workspace    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	FinishedAt   *time.Time
}

// Duration returns how long the run took, or how long it has been running.
func (r *Run) Duration(now time.Time) time.Duration {
	if r == nil || r.CreatedAt.IsZero() {
		return 0
	}
	end := now
	if r.FinishedAt != nil {
		end = *r.FinishedAt
	}
	return end.Sub(r.CreatedAt)
}

// Finished reports whether the run reached a terminal status.
func (r *Run) Finished() bool {
	return r != nil && r.Status != StatusRunning
}
