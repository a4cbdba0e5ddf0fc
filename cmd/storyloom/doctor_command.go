package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"storyloom/internal/deps"
	"storyloom/internal/notifications"
	"storyloom/internal/preflight"
	"storyloom/internal/stage"
	"storyloom/internal/workspace"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check binaries, directories, backends and stage readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			statuses := preflight.CheckSystemDeps(cfg)
			fmt.Fprintln(out, renderSectionHeader("Dependencies", colorize))
			for _, line := range dependencyLines(statuses, colorize) {
				fmt.Fprintln(out, line)
			}
			for _, s := range statuses {
				if !s.Available {
					continue
				}
				if version, err := deps.Version(cmd.Context(), s.Command); err == nil && version != "" {
					fmt.Fprintln(out, renderStatusLine(s.Name+" version", statusInfo, version, colorize))
				}
			}

			results := preflight.RunAll(cmd.Context(), cfg)
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderSectionHeader("Environment", colorize))
			for _, r := range results {
				fmt.Fprintln(out, preflightLine(r, colorize))
			}

			ws, err := workspace.Plan(cfg.Paths.WorkDir, "doctor", time.Now())
			if err != nil {
				return err
			}
			collab, err := buildCollaborators(cmd.Context(), cfg, ws, buildOptions{}, nil)
			if err != nil {
				return err
			}
			defer collab.Close()
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderSectionHeader("Stages", colorize))
			for _, h := range stageHealth(cmd.Context(), collab.Stages()) {
				fmt.Fprintln(out, healthLine(h, colorize))
			}

			var problems []string
			if missing := deps.MissingRequired(statuses); len(missing) > 0 {
				problems = append(problems, "missing "+strings.Join(missing, ", "))
			}
			for _, r := range preflight.Blocking(results) {
				problems = append(problems, r.Name)
			}
			if len(problems) > 0 {
				return fmt.Errorf("doctor found problems: %s", strings.Join(problems, "; "))
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Ready to run")
			return nil
		},
	}
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(statuses))
	for _, s := range statuses {
		switch {
		case s.Available:
			lines = append(lines, renderStatusLine(s.Name, statusOK, "Ready (command: "+s.Command+")", colorize))
		case s.Optional:
			lines = append(lines, renderStatusLine(s.Name, statusWarn, s.Detail, colorize))
		default:
			lines = append(lines, renderStatusLine(s.Name, statusError, s.Detail, colorize))
		}
	}
	return lines
}

func preflightLine(r preflight.Result, colorize bool) string {
	switch {
	case r.Passed:
		return renderStatusLine(r.Name, statusOK, r.Detail, colorize)
	case r.Warning:
		return renderStatusLine(r.Name, statusWarn, r.Detail, colorize)
	default:
		return renderStatusLine(r.Name, statusError, r.Detail, colorize)
	}
}

func healthLine(h stage.Health, colorize bool) string {
	switch {
	case !h.Ready:
		return renderStatusLine(h.Name, statusError, h.Detail, colorize)
	case h.Detail != "":
		return renderStatusLine(h.Name, statusWarn, h.Detail, colorize)
	default:
		return renderStatusLine(h.Name, statusOK, "ready", colorize)
	}
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
				fmt.Fprintln(out, "Notifications are disabled (notifications.ntfy_topic is empty)")
				return nil
			}
			if err := notifications.NewService(cfg).TestNotification(cmd.Context()); err != nil {
				return errors.Join(errors.New("test notification failed"), err)
			}
			fmt.Fprintln(out, "Test notification sent")
			return nil
		},
	}
}
