package main

import (
	"fmt"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/prayerkit/internal/config"
)

var openCmd = &cobra.Command{
	Use:       "open <config|cache>",
	Short:     "Open the config file or the cache directory",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"config", "cache"},
	// Works without a daemon.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			path string
			err  error
		)
		switch args[0] {
		case "config":
			path, err = config.ConfigPath()
		case "cache":
			path, err = config.CacheDir()
		default:
			return fmt.Errorf("unknown target: %s", args[0])
		}
		if err != nil {
			return fmt.Errorf("failed to get path: %w", err)
		}
		if err := browser.OpenFile(path); err != nil {
			return fmt.Errorf("failed to open: %w", err)
		}
		return nil
	},
}
