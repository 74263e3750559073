package cmd

import (
	"fmt"
	"os"

	"fieldsync/internal/config"
	"fieldsync/internal/db"
	"fieldsync/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfg   *config.Config
	debug bool
)

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "Offline-first photo and reading capture with background sync",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		logger.Init(debug, cfg.Log)

		// Only the daemon owns the database; everything else talks to it
		// over the control API.
		if cmd.Name() == "daemon" {
			if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
				return fmt.Errorf("failed to create data dir: %w", err)
			}
			if err := db.Init(cfg.DBPath); err != nil {
				return err
			}
		}

		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func daemonURL(path string) string {
	return fmt.Sprintf("http://localhost:%d%s", cfg.DaemonPort, path)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug mode")
}
