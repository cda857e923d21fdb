package main

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/prayerkit/internal/config"
	"github.com/ibeckermayer/prayerkit/internal/store"
)

var (
	exchangesCount int
	exchangesFull  bool
)

var exchangesCmd = &cobra.Command{
	Use:   "exchanges",
	Short: "Show the latest recorded model exchanges",
	Long: `exchanges prints the newest prompt/response pairs written while
ai.cache_exchanges is enabled. It reads the cache directory directly and
does not need a running daemon.`,
	Args: cobra.NoArgs,
	// Works without a daemon.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := config.ExchangesDir()
		if err != nil {
			return errors.Wrap(err, "exchanges dir")
		}
		log := store.NewExchangeLog(dir)
		items, err := log.Latest(exchangesCount)
		if err != nil {
			return errors.Wrapf(err, "read %s", log.Dir())
		}

		out := cmd.OutOrStdout()
		if len(items) == 0 {
			fmt.Fprintf(out, "No exchanges in %s (is ai.cache_exchanges enabled?)\n", log.Dir())
			return nil
		}
		for _, ex := range items {
			fmt.Fprintf(out, "%s  %s/%s  %s\n", ex.Timestamp.Format("2006-01-02 15:04:05"), ex.Provider, ex.Model, ex.Stage)
			if ex.Error != "" {
				fmt.Fprintf(out, "  error: %s\n", ex.Error)
			}
			if exchangesFull {
				fmt.Fprintf(out, "  prompt:\n%s\n  response:\n%s\n", indent(ex.Prompt), indent(ex.Response))
			}
		}
		return nil
	},
}

func indent(s string) string {
	return "    " + strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n    ")
}

func init() {
	exchangesCmd.Flags().IntVarP(&exchangesCount, "number", "n", 10, "how many exchanges to show")
	exchangesCmd.Flags().BoolVar(&exchangesFull, "full", false, "include prompts and responses")
}
