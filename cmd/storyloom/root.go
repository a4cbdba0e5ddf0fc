package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	root := &cobra.Command{
		Use:           "storyloom",
		Short:         "Turn a topic into a narrated video",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&ctx.configFile, "config", "c", "", "Configuration file path")
	flags.StringVar(&ctx.envFile, "env-file", ".env", "Environment file loaded before the configuration")

	root.AddCommand(
		newRunCommand(ctx),
		newRunsCommand(ctx),
		newConfigCommand(ctx),
		newDoctorCommand(ctx),
		newTestNotifyCommand(ctx),
	)
	return root
}
