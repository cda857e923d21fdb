package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/prayerkit/internal/types"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Run content jobs by hand",
}

var (
	jobLang string
	jobType string
	jobWait bool
)

var jobRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a job now; it does not consume a scheduled slot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := types.ParseLocale(jobLang)
		if err != nil {
			return err
		}
		class, err := types.ParseJobClass(jobType)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if !jobWait {
			running, err := client.SubmitJob(cmd.Context(), l, class)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Started %s job for %s. Follow it with `pk status`.\n", running.Class, running.Locale)
			return nil
		}

		fmt.Fprintf(out, "Running %s job for %s...\n", class, l)
		item, err := client.RunJob(cmd.Context(), l, class)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Created %s: %s\n", item.ID, item.Title())
		return nil
	},
}

func init() {
	jobRunCmd.Flags().StringVar(&jobLang, "lang", "pt", "content language (pt, en, es)")
	jobRunCmd.Flags().StringVar(&jobType, "type", "short", "job type (long, short)")
	jobRunCmd.Flags().BoolVar(&jobWait, "wait", false, "wait for the job to finish")
	jobCmd.AddCommand(jobRunCmd)
}
