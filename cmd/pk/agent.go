package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/prayerkit/internal/scheduler"
	"github.com/ibeckermayer/prayerkit/internal/server"
	"github.com/ibeckermayer/prayerkit/internal/types"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Enable, disable or re-cadence an agent",
}

func init() {
	agentCmd.AddCommand(
		toggleCmd("enable", true),
		toggleCmd("disable", false),
		cadenceCmd,
	)
}

func toggleCmd(name string, on bool) *cobra.Command {
	return &cobra.Command{
		Use:       name + " <long|short>",
		Short:     fmt.Sprintf("%s an agent", name),
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(types.ClassLong), string(types.ClassShort)},
		RunE: func(cmd *cobra.Command, args []string) error {
			class, err := types.ParseJobClass(args[0])
			if err != nil {
				return err
			}
			st, err := client.UpdateAgent(cmd.Context(), class, server.AgentUpdate{Active: &on})
			if err != nil {
				return err
			}
			printStatus(cmd, st)
			return nil
		},
	}
}

var cadenceCmd = &cobra.Command{
	Use:   "cadence <long|short> <n>",
	Short: "Set how many slots per day an agent uses",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		class, err := types.ParseJobClass(args[0])
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("cadence must be a number: %w", err)
		}
		st, err := client.UpdateAgent(cmd.Context(), class, server.AgentUpdate{Cadence: &n})
		if err != nil {
			return err
		}
		printStatus(cmd, st)
		return nil
	},
}

func printStatus(cmd *cobra.Command, st *scheduler.Status) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (cadence %d)\n", st.Class, st.Text, st.Cadence)
}
