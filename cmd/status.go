package cmd

import (
	"fmt"

	"fieldsync/internal/model"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		var snap model.StatusSnapshot
		if err := getJSON("/status", &snap); err != nil {
			return err
		}

		state := "idle"
		switch {
		case snap.Paused:
			state = "paused"
		case snap.SyncInProgress:
			state = "syncing"
		}

		network := "offline"
		if snap.IsOnline {
			network = "online"
		}

		fmt.Printf("state:    %s (%s)\n", state, network)
		fmt.Printf("pending:  %d photos, %d readings\n", snap.PendingUploads, snap.PendingReadings)

		if snap.Current != nil {
			fmt.Printf("current:  %s %d/%d bytes\n", snap.Current.PhotoID, snap.Current.Sent, snap.Current.Total)
		}
		if s := snap.LastSummary; s != nil {
			fmt.Printf("last:     %s at %s, %s\n", s.Trigger, s.FinishedAt.Format("2006-01-02 15:04:05"), summaryLine(*s))
		}

		return nil
	},
}

func summaryLine(s model.DrainSummary) string {
	line := fmt.Sprintf("%d photos synced, %d failed", s.PhotosSynced, s.PhotosFailed)
	if s.PhotosAbandoned > 0 {
		line += fmt.Sprintf(" (%d abandoned)", s.PhotosAbandoned)
	}
	if s.ReadingsSynced+s.ReadingsFailed > 0 {
		line += fmt.Sprintf(", %d readings synced, %d failed", s.ReadingsSynced, s.ReadingsFailed)
	}
	return line
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
