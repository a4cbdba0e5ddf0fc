package stage

import (
	"context"

	"storyloom/internal/storyboard"
)

// Handler describes the contract the pipeline needs from each stage. Execute
// reads a private snapshot of the run state and returns the changes it owns.
// When Execute fails, only the Log lines of the returned delta are kept.
type Handler interface {
	Execute(context.Context, storyboard.State) (storyboard.Delta, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(context.Context, storyboard.State) (storyboard.Delta, error)

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, s storyboard.State) (storyboard.Delta, error) {
	return f(ctx, s)
}

// HealthReporter is implemented by handlers that can describe their backends.
type HealthReporter interface {
	HealthCheck(context.Context) Health
}
