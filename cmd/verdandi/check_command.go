package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"verdandi/internal/preflight"
	"verdandi/internal/workflow"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run preflight checks against the configured environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(svc workflow.Services) error {
				results := preflight.RunAll(cmd.Context(), svc.Config, svc.Store, svc.Registry)
				out := cmd.OutOrStdout()
				for _, line := range preflightLines(results, isTerminal(out)) {
					fmt.Fprintln(out, line)
				}
				if failed := preflight.Failed(results); len(failed) > 0 {
					return fmt.Errorf("%d preflight check(s) failed", len(failed))
				}
				return nil
			})
		},
	}
}
