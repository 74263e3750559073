package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Stop starting new syncs until resumed",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := postJSON("/pause", nil, nil); err != nil {
			return err
		}

		fmt.Println("sync paused")
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume syncing",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := postJSON("/resume", nil, nil); err != nil {
			return err
		}

		fmt.Println("sync resumed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pauseCmd, resumeCmd)
}
