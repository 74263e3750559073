package cmd

import (
	"fmt"

	"fieldsync/internal/model"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upload everything queued offline now",
	RunE: func(cmd *cobra.Command, args []string) error {
		var summary model.DrainSummary
		if err := postJSON("/sync", nil, &summary); err != nil {
			return err
		}

		if summary.Empty() {
			fmt.Println("nothing to sync")
			return nil
		}

		fmt.Println(summaryLine(summary))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
