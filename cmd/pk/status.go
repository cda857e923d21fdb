package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of both agents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := client.Status(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, a := range st.Agents {
			fmt.Fprintf(out, "%-6s %-8s cadence=%d  %s\n", a.Class, a.State, a.Cadence, a.Text)
		}
		if st.Busy {
			fmt.Fprintln(out, "A job is running.")
		}
		return nil
	},
}
