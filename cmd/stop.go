package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := postJSON("/stop", nil, nil); err != nil {
			return err
		}

		fmt.Println("stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
