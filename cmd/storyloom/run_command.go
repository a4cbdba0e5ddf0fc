package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"storyloom/internal/config"
	"storyloom/internal/deps"
	"storyloom/internal/logging"
	"storyloom/internal/notifications"
	"storyloom/internal/pipeline"
	"storyloom/internal/runlog"
	"storyloom/internal/runstore"
	"storyloom/internal/scripting"
	"storyloom/internal/services"
	"storyloom/internal/storyboard"
	"storyloom/internal/workspace"
)

// errNoOutput is returned when every stage ran but no video was written.
var errNoOutput = errors.New("run finished without a video")

const storyboardFileName = "storyboard.yaml"

type runFlags struct {
	ratio        string
	length       string
	style        string
	forceExecute bool
	storyboard   string
	json         bool
}

// runSummary is the result printed after a run.
type runSummary struct {
	RunID          string          `json:"run_id"`
	Topic          string          `json:"topic"`
	Status         runstore.Status `json:"status"`
	FinalVideoPath string          `json:"final_video_path"`
	Workspace      string          `json:"workspace"`
	Scenes         int             `json:"scenes"`
	ElapsedSeconds float64         `json:"elapsed_seconds"`
	Error          string          `json:"error,omitempty"`
	Log            []string        `json:"log"`
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run <topic>",
		Short: "Generate a narrated video for a topic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			topic := strings.TrimSpace(strings.Join(args, " "))
			if topic == "" {
				return errors.New("topic is required")
			}
			if !cmd.Flags().Changed("force-execute") {
				flags.forceExecute = cfg.Pipeline.ForceExecute
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return executeRun(runCtx, cmd, cfg, logger, topic, flags)
		},
	}

	cmd.Flags().StringVar(&flags.ratio, "ratio", "", "Aspect ratio such as 16:9 (default from config)")
	cmd.Flags().StringVar(&flags.length, "length", "", "Target length: short, medium or long (default from config)")
	cmd.Flags().StringVar(&flags.style, "style", "", "Style hint such as cinematic or anime (default from config)")
	cmd.Flags().BoolVar(&flags.forceExecute, "force-execute", false, "Keep the last image when a scene exhausts its attempts")
	cmd.Flags().StringVar(&flags.storyboard, "storyboard", "", "Replay scenes from a YAML storyboard instead of planning them")
	cmd.Flags().BoolVar(&flags.json, "json", false, "Print the run summary as JSON")
	return cmd
}

func runParams(cfg *config.Config, flags runFlags) (storyboard.Params, error) {
	params := storyboard.Params{
		AspectRatio:  firstNonEmpty(flags.ratio, cfg.Pipeline.DefaultAspectRatio),
		TargetLength: firstNonEmpty(flags.length, cfg.Pipeline.DefaultTargetLength),
		Style:        firstNonEmpty(flags.style, cfg.Pipeline.DefaultStyle),
	}
	if !config.ValidAspectRatio(params.AspectRatio) {
		return storyboard.Params{}, services.Wrap(services.ErrValidation, "cli", "parse flags", fmt.Sprintf("invalid aspect ratio %q", params.AspectRatio), nil)
	}
	return params, nil
}

func executeRun(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, topic string, flags runFlags) error {
	params, err := runParams(cfg, flags)
	if err != nil {
		return err
	}
	if missing := deps.MissingRequired(deps.CheckBinaries(deps.Requirements(cfg))); len(missing) > 0 {
		return services.Wrap(services.ErrConfiguration, "cli", "check dependencies", "missing required binaries: "+strings.Join(missing, ", "), nil)
	}

	store, err := runstore.OpenFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	defer store.Close()

	record, ws, err := openRun(ctx, store, cfg.Paths.WorkDir, topic, params)
	if err != nil {
		return err
	}

	runLogger, closeLog := attachRunLog(cfg, logger, record.ID)
	defer closeLog()
	ctx = services.WithRunID(ctx, record.ID)

	collab, err := buildCollaborators(ctx, cfg, ws, buildOptions{
		Params:         pipelineParams{AspectRatio: params.AspectRatio, TargetLength: params.TargetLength},
		ForceExecute:   flags.forceExecute,
		StoryboardFile: flags.storyboard,
	}, runLogger)
	if err != nil {
		_ = store.Fail(context.WithoutCancel(ctx), record.ID, err, nil)
		return err
	}
	defer func() {
		if err := collab.Close(); err != nil {
			logging.WarnWithContext(runLogger, "backend close failed", "backend_close_failed", logging.Error(err))
		}
	}()
	logBackends(runLogger, collab.Summary)

	graph, err := pipeline.Standard(collab.Handlers)
	if err != nil {
		_ = store.Fail(context.WithoutCancel(ctx), record.ID, err, nil)
		return err
	}

	started := time.Now()
	state, runErr := pipeline.New(graph, runLogger).Run(ctx, storyboard.Input{Topic: topic, Params: params})
	elapsed := time.Since(started)

	// Persisting and notifying must survive an interrupted run.
	finishCtx := context.WithoutCancel(ctx)
	if len(state.Scenes) > 0 {
		path := filepath.Join(ws.StoryboardDir, storyboardFileName)
		if err := scripting.SaveFile(path, state.Topic, state.StylePrompt, state.Scenes); err != nil {
			logging.WarnWithContext(runLogger, "storyboard not saved", "storyboard_save_failed",
				logging.String("path", path),
				logging.Error(err),
			)
		}
	}

	notifier := notifications.NewService(cfg)
	summary := runSummary{
		RunID:          record.ID,
		Topic:          topic,
		FinalVideoPath: state.FinalVideoPath,
		Workspace:      ws.Root,
		Scenes:         len(state.Scenes),
		ElapsedSeconds: elapsed.Seconds(),
		Log:            append([]string{}, state.Log...),
	}

	switch {
	case runErr != nil:
		summary.Status = runstore.StatusFailed
		summary.Error = runErr.Error()
		if err := store.Fail(finishCtx, record.ID, runErr, state.Log); err != nil {
			logging.WarnWithContext(runLogger, "run status not recorded", "runstore_update_failed", logging.Error(err))
		}
		if !errors.Is(runErr, context.Canceled) {
			if err := notifier.NotifyRunFailed(finishCtx, topic, runErr); err != nil {
				logging.WarnWithContext(runLogger, "failure notification failed", "notify_failed", logging.Error(err))
			}
		}
	default:
		summary.Status = runstore.StatusCompleted
		if state.FinalVideoPath == "" {
			summary.Status = runstore.StatusNoOutput
		}
		if err := store.Complete(finishCtx, record.ID, state.FinalVideoPath, state.Log); err != nil {
			logging.WarnWithContext(runLogger, "run status not recorded", "runstore_update_failed", logging.Error(err))
		}
		if state.FinalVideoPath != "" {
			if err := notifier.NotifyRunCompleted(finishCtx, topic, state.FinalVideoPath, len(state.Scenes), elapsed); err != nil {
				logging.WarnWithContext(runLogger, "completion notification failed", "notify_failed", logging.Error(err))
			}
		}
	}

	if flags.json {
		if err := writeJSON(cmd, summary); err != nil {
			return err
		}
	} else {
		printRunSummary(cmd.OutOrStdout(), summary, shouldColorize(cmd.OutOrStdout()))
	}

	if runErr != nil {
		return fmt.Errorf("run %s: %w", shortRunID(record.ID), runErr)
	}
	if summary.Status == runstore.StatusNoOutput {
		return fmt.Errorf("run %s: %w", shortRunID(record.ID), errNoOutput)
	}
	return nil
}

// attachRunLog tees the run's records into <log_dir>/runs/<id>.log and prunes
// run logs past retention.
func attachRunLog(cfg *config.Config, logger *slog.Logger, runID string) (*slog.Logger, func()) {
	dir := runlog.Dir(cfg.Paths.LogDir)
	path := runlog.Path(cfg.Paths.LogDir, runID)
	handler, closer, err := logging.NewRunFileHandler(path, cfg.Logging.Level)
	if err != nil {
		logging.WarnWithContext(logger, "run log unavailable", "run_log_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run logs only go to the console"),
		)
		return logger, func() {}
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, dir, "*.log", path)
	return logging.TeeLogger(logger, handler), func() { _ = closer.Close() }
}

func printRunSummary(out io.Writer, s runSummary, colorize bool) {
	fmt.Fprintln(out, renderSectionHeader("Run "+shortRunID(s.RunID), colorize))
	for _, line := range s.Log {
		fmt.Fprintf(out, "%s%s\n", statusIndent, line)
	}
	fmt.Fprintln(out)

	kind := statusOK
	message := s.FinalVideoPath
	switch s.Status {
	case runstore.StatusFailed:
		kind, message = statusError, s.Error
	case runstore.StatusNoOutput:
		kind, message = statusWarn, "no video was rendered"
	}
	fmt.Fprintln(out, renderStatusLine("Result", kind, message, colorize))
	fmt.Fprintln(out, renderStatusLine("Scenes", statusInfo, fmt.Sprintf("%d", s.Scenes), colorize))
	fmt.Fprintln(out, renderStatusLine("Workspace", statusInfo, s.Workspace, colorize))
	fmt.Fprintln(out, renderStatusLine("Elapsed", statusInfo, formatElapsed(time.Duration(s.ElapsedSeconds*float64(time.Second))), colorize))
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// runRecorder is the part of the run store used while a run is set up.
type runRecorder interface {
	Create(ctx context.Context, topic string, params storyboard.Params) (*runstore.Run, error)
	AttachWorkspace(ctx context.Context, id, dir string) error
	Fail(ctx context.Context, id string, runErr error, events []string) error
}

// openRun records a new run and creates its workspace. A run whose setup fails
// is marked failed right away instead of staying running.
func openRun(ctx context.Context, store runRecorder, workDir, topic string, params storyboard.Params) (*runstore.Run, *workspace.Workspace, error) {
	record, err := store.Create(ctx, topic, params)
	if err != nil {
		return nil, nil, err
	}
	ws, err := workspace.Create(workDir, record.ID, record.CreatedAt)
	if err == nil {
		err = store.AttachWorkspace(ctx, record.ID, ws.Root)
	}
	if err != nil {
		_ = store.Fail(context.WithoutCancel(ctx), record.ID, err, nil)
		return nil, nil, err
	}
	return record, ws, nil
}
