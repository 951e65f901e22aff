package main

import (
	"fmt"
	"strings"

	"github.com/fixkme/timerd/host"
	"github.com/fixkme/timerd/timer"
	"github.com/spf13/cobra"
)

func newOpsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ops [prefix]",
		Short: "list operation names and aliases",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h := host.New(timer.New())
			w := cmd.OutOrStdout()
			if len(args) == 1 {
				for _, name := range h.Ops(args[0]) {
					fmt.Fprintln(w, name)
				}
				return nil
			}
			for _, name := range h.Names() {
				if aliases := h.Aliases(name); len(aliases) > 0 {
					fmt.Fprintf(w, "%s\t%s\n", name, strings.Join(aliases, ","))
				} else {
					fmt.Fprintln(w, name)
				}
			}
			return nil
		},
	}
}
