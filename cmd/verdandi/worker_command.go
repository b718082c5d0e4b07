package main

import (
	"github.com/spf13/cobra"

	"verdandi/internal/daemonrun"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a worker process in the foreground",
		Long: "Run a worker process: claim queued jobs from the shared store, " +
			"drive experiments through the pipeline and schedule discovery batches. " +
			"Stops on SIGINT or SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&development, "dev", false, "Enable development logging (source locations)")
	return cmd
}
