package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"storyloom/internal/runlog"
	"storyloom/internal/runstore"
	"storyloom/internal/storyboard"
	"storyloom/internal/textutil"
)

const topicColumnWidth = 40

// runView is the JSON shape of a recorded run.
type runView struct {
	ID           string            `json:"id"`
	Topic        string            `json:"topic"`
	Params       storyboard.Params `json:"params"`
	Status       runstore.Status   `json:"status"`
	FinalPath    string            `json:"final_path,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	ErrorKind    string            `json:"error_kind,omitempty"`
	Workspace    string            `json:"workspace,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
	Events       []string          `json:"events,omitempty"`
}

func toRunView(run *runstore.Run) runView {
	return runView{
		ID:           run.ID,
		Topic:        run.Topic,
		Params:       run.Params,
		Status:       run.Status,
		FinalPath:    run.FinalPath,
		ErrorMessage: run.ErrorMessage,
		ErrorKind:    run.ErrorKind,
		Workspace:    run.Workspace,
		CreatedAt:    run.CreatedAt,
		FinishedAt:   run.FinishedAt,
	}
}

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunStore(ctx, func(store *runstore.Store) error {
				runs, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					views := make([]runView, 0, len(runs))
					for _, run := range runs {
						views = append(views, toRunView(run))
					}
					return writeJSON(cmd, views)
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Topic", "Status", "Started", "Duration", "Output"},
					runRows(runs, time.Now()),
					4,
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print runs as JSON")

	cmd.AddCommand(newRunsShowCommand(ctx))
	cmd.AddCommand(newRunsLogsCommand(ctx))
	cmd.AddCommand(newRunsReapCommand(ctx))
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a run and its event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunStore(ctx, func(store *runstore.Store) error {
				run, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				events, err := store.Events(cmd.Context(), run.ID)
				if err != nil {
					return err
				}
				if jsonOutput {
					view := toRunView(run)
					view.Events = events
					return writeJSON(cmd, view)
				}
				printRunDetail(cmd, run, events)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run as JSON")
	return cmd
}

func newRunsLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs <id>",
		Short: "Print a run's log records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return withRunStore(ctx, func(store *runstore.Store) error {
				run, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				path := runlog.Path(cfg.Paths.LogDir, run.ID)
				tail, offset, err := runlog.Last(path, lines)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, line := range tail {
					fmt.Fprintln(out, line)
				}
				if !follow || run.Finished() {
					return nil
				}
				finished := func() bool {
					current, err := store.Get(cmd.Context(), run.ID)
					return err != nil || current.Finished()
				}
				return runlog.Follow(cmd.Context(), path, offset, func(line string) {
					fmt.Fprintln(out, line)
				}, finished)
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Trailing lines to print (0 for all)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing until the run finishes")
	return cmd
}

func newRunsReapCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Mark runs left running by an interrupted process as failed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunStore(ctx, func(store *runstore.Store) error {
				n, err := store.FailRunning(cmd.Context(), "process exited before the run finished")
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Marked %d run(s) as failed\n", n)
				return nil
			})
		},
	}
}

func withRunStore(ctx *commandContext, fn func(*runstore.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := runstore.OpenFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func runRows(runs []*runstore.Run, now time.Time) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		output := "-"
		if run.FinalPath != "" {
			output = filepath.Base(run.FinalPath)
		}
		rows = append(rows, []string{
			shortRunID(run.ID),
			textutil.Truncate(run.Topic, topicColumnWidth),
			string(run.Status),
			run.CreatedAt.Local().Format("2006-01-02 15:04"),
			formatElapsed(run.Duration(now)),
			output,
		})
	}
	return rows
}

func printRunDetail(cmd *cobra.Command, run *runstore.Run, events []string) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	fmt.Fprintln(out, renderSectionHeader("Run "+run.ID, colorize))
	kind := statusInfo
	switch run.Status {
	case runstore.StatusCompleted:
		kind = statusOK
	case runstore.StatusNoOutput:
		kind = statusWarn
	case runstore.StatusFailed:
		kind = statusError
	}
	fmt.Fprintln(out, renderStatusLine("Status", kind, string(run.Status), colorize))
	fmt.Fprintln(out, renderStatusLine("Topic", statusInfo, run.Topic, colorize))
	fmt.Fprintln(out, renderStatusLine("Aspect ratio", statusInfo, run.Params.AspectRatio, colorize))
	fmt.Fprintln(out, renderStatusLine("Target length", statusInfo, textutil.TitleCase(run.Params.TargetLength), colorize))
	fmt.Fprintln(out, renderStatusLine("Style", statusInfo, textutil.TitleCase(run.Params.Style), colorize))
	fmt.Fprintln(out, renderStatusLine("Started", statusInfo, run.CreatedAt.Local().Format(time.RFC3339), colorize))
	fmt.Fprintln(out, renderStatusLine("Duration", statusInfo, formatElapsed(run.Duration(time.Now())), colorize))
	if run.Workspace != "" {
		fmt.Fprintln(out, renderStatusLine("Workspace", statusInfo, run.Workspace, colorize))
	}
	if run.FinalPath != "" {
		fmt.Fprintln(out, renderStatusLine("Output", statusOK, run.FinalPath, colorize))
	}
	if run.ErrorMessage != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, fmt.Sprintf("%s (%s)", run.ErrorMessage, run.ErrorKind), colorize))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, renderSectionHeader("Events", colorize))
	if len(events) == 0 {
		fmt.Fprintf(out, "%s(none)\n", statusIndent)
		return
	}
	for i, line := range events {
		fmt.Fprintf(out, "%s%3d  %s\n", statusIndent, i+1, line)
	}
}
