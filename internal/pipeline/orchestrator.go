package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"storyloom/internal/logging"
	"storyloom/internal/services"
	"storyloom/internal/storyboard"
	"storyloom/internal/visual"
)

// ErrEmptyScript is returned when the script stage yields no scenes.
var ErrEmptyScript = errors.New("script produced no scenes")

// Orchestrator executes a Graph.
type Orchestrator struct {
	graph  *Graph
	logger *slog.Logger
	now    func() time.Time
}

// New constructs an orchestrator for graph.
func New(graph *Graph, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		graph:  graph,
		logger: logging.NewComponentLogger(logger, "pipeline"),
		now:    time.Now,
	}
}

type nodeOutcome struct {
	delta    storyboard.Delta
	err      error
	duration time.Duration
}

// Run executes every level of the graph and returns the final state. The state
// is returned even when the run fails so callers can persist its log; a failed
// run always has an empty final path.
func (o *Orchestrator) Run(ctx context.Context, in storyboard.Input) (storyboard.State, error) {
	state := storyboard.NewState(in)
	logger := logging.WithContext(ctx, o.logger)
	runStart := o.now()
	logger.Info("pipeline started",
		logging.String("topic", state.Topic),
		logging.String(logging.FieldEventType, "pipeline_start"),
	)

	for levelIdx, level := range o.graph.levels {
		snapshot := state.Clone()
		outcomes := make([]nodeOutcome, len(level))

		g, gctx := errgroup.WithContext(ctx)
		for i, nodeIdx := range level {
			node := o.graph.nodes[nodeIdx]
			g.Go(func() error {
				outcomes[i] = o.execute(gctx, node, snapshot.Clone())
				return outcomes[i].err
			})
		}
		_ = g.Wait()

		var runErr error
		for i, nodeIdx := range level {
			node := o.graph.nodes[nodeIdx]
			out := outcomes[i]
			if out.err != nil {
				state.Log = append(state.Log, out.delta.Log...)
				state.Log = append(state.Log, fmt.Sprintf("[%s] failed after %s: %v", node.Name, roundDuration(out.duration), out.err))
				if runErr == nil || (errors.Is(runErr, context.Canceled) && !errors.Is(out.err, context.Canceled)) {
					runErr = fmt.Errorf("stage %s: %w", node.Name, out.err)
				}
				continue
			}
			next, err := storyboard.Apply(state, out.delta)
			if err != nil {
				wrapped := services.Wrap(services.ErrValidation, node.Name, "apply delta", "stage returned an inconsistent update", err)
				state.Log = append(state.Log, fmt.Sprintf("[%s] failed: %v", node.Name, wrapped))
				if runErr == nil {
					runErr = wrapped
				}
				continue
			}
			state = next
			state.Log = append(state.Log, fmt.Sprintf("[%s] completed in %s", node.Name, roundDuration(out.duration)))
			if node.Check != nil {
				if err := node.Check(state); err != nil {
					state.Log = append(state.Log, fmt.Sprintf("Error: %v", err))
					if runErr == nil {
						runErr = fmt.Errorf("stage %s: %w", node.Name, err)
					}
				}
			}
		}

		if runErr != nil {
			state.FinalVideoPath = ""
			logging.ErrorWithContext(logger, "pipeline failed", "pipeline_failed",
				logging.Int("level", levelIdx),
				logging.Error(runErr),
				logging.Duration("elapsed", o.now().Sub(runStart)),
				logging.String(logging.FieldErrorHint, failureHint(runErr)),
			)
			return state, runErr
		}
	}

	logger.Info("pipeline completed",
		logging.String("final_video", state.FinalVideoPath),
		logging.Int("scenes", len(state.Scenes)),
		logging.Duration("elapsed", o.now().Sub(runStart)),
		logging.String(logging.FieldEventType, "pipeline_complete"),
	)
	return state, nil
}

func (o *Orchestrator) execute(ctx context.Context, node Node, snapshot storyboard.State) nodeOutcome {
	stageCtx := services.WithStage(ctx, node.Name)
	stageLogger := logging.WithContext(stageCtx, o.logger)
	start := o.now()
	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("scenes", len(snapshot.Scenes)),
	)

	delta, err := node.Handler.Execute(stageCtx, snapshot)
	elapsed := o.now().Sub(start)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			stageLogger.Debug("stage interrupted", logging.Duration("stage_duration", elapsed))
		} else {
			stageLogger.Error("stage failed",
				logging.String(logging.FieldEventType, "stage_failure"),
				logging.String("error_kind", services.Classify(err)),
				logging.Error(err),
				logging.Duration("stage_duration", elapsed),
			)
		}
		return nodeOutcome{delta: storyboard.Delta{Log: delta.Log}, err: err, duration: elapsed}
	}
	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("log_lines", len(delta.Log)),
		logging.Duration("stage_duration", elapsed),
	)
	return nodeOutcome{delta: delta, duration: elapsed}
}

func roundDuration(d time.Duration) time.Duration {
	return d.Round(time.Millisecond)
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, ErrEmptyScript):
		return "the storyboard planner returned no scenes; check the language model or pass --storyboard"
	case errors.Is(err, visual.ErrGenerationExhausted):
		return "enable pipeline.force_execute or pass --force-execute to keep the last image"
	case errors.Is(err, context.Canceled):
		return "run was cancelled"
	default:
		return "see the run log for the failing stage"
	}
}
