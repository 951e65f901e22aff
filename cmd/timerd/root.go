package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "timerd",
		Short:        "deferred callback scheduler",
		Long:         "timerd keeps tick and real-time timers for a host and hands back due callbacks on fire.",
		SilenceUsage: true,
	}
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newCallCommand())
	cmd.AddCommand(newOpsCommand())
	return cmd
}
