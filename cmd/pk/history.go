package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/prayerkit/internal/history"
	"github.com/ibeckermayer/prayerkit/internal/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse generated kits",
}

var (
	listLang   string
	listSearch string
)

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List kits, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var f history.Filter
		if listLang != "" {
			l, err := types.ParseLocale(listLang)
			if err != nil {
				return err
			}
			f.Language = l
		}
		f.Search = listSearch

		items, err := client.History(cmd.Context(), f)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDATE\tLANG\tTYPE\tDL\tTITLE")
		for _, it := range items {
			dl := ""
			if it.IsDownloaded {
				dl = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				it.ID, it.CreatedAt().Format("2006-01-02 15:04"), it.Language, it.Type, dl, it.Title())
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the content sheet of a kit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sheet, err := client.Sheet(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), sheet)
		return nil
	},
}

var historyDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a kit as downloaded",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return client.MarkDownloaded(cmd.Context(), args[0])
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a kit and its media",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.DeleteItem(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	historyListCmd.Flags().StringVar(&listLang, "lang", "", "only this language (pt, en, es)")
	historyListCmd.Flags().StringVarP(&listSearch, "search", "q", "", "match title or theme")

	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDoneCmd, historyDeleteCmd)
}
