// Command pk is the maintenance CLI for a running prayerkit daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ibeckermayer/prayerkit/internal/config"
	"github.com/ibeckermayer/prayerkit/internal/server"
)

var (
	overrides *viper.Viper

	// client is initialized by PersistentPreRunE.
	client *server.Client
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pk",
	Short: "pk manages a running prayerkit daemon",
	Long: `pk talks to the prayerkit daemon over its HTTP API: it shows agent
status, toggles the long and short agents, starts manual jobs and browses
the generated kits.`,
	SilenceUsage:      true,
	PersistentPreRunE: initClient,
}

func init() {
	overrides = config.NewOverrides()
	rootCmd.PersistentFlags().String("addr", "", "daemon address (default: server.addr from the config file)")
	_ = overrides.BindPFlag(config.KeyServerAddr, rootCmd.PersistentFlags().Lookup("addr"))

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(exchangesCmd)
}

// initClient resolves the daemon address from config, env and flags.
func initClient(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}
	config.ApplyOverrides(cfg, overrides)
	client = server.NewClient(cfg.Server.Addr)
	return nil
}
