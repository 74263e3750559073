package cmd

import (
	"fmt"
	"net/url"

	"fieldsync/internal/model"
	"fieldsync/internal/repository"

	"github.com/spf13/cobra"
)

var (
	historyN         int
	historyStats     bool
	historyAbandoned string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View past sync runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyStats {
			return printStats()
		}
		if historyAbandoned != "" {
			return printAbandoned(historyAbandoned)
		}

		var histories []model.History
		if err := getJSON(fmt.Sprintf("/history?n=%d", historyN), &histories); err != nil {
			return err
		}

		if len(histories) == 0 {
			fmt.Println("no history yet")
			return nil
		}

		for _, h := range histories {
			status := "✓"
			if h.PhotosFailed > 0 || h.ReadingsFailed > 0 {
				status = "✗"
			}

			fmt.Printf("%s [%s] %-12s %s\n",
				status,
				h.StartedAt.Format("2006-01-02 15:04:05"),
				h.Trigger,
				summaryLine(model.DrainSummary{
					PhotosSynced:    h.PhotosSynced,
					PhotosFailed:    h.PhotosFailed,
					PhotosAbandoned: h.PhotosAbandoned,
					ReadingsSynced:  h.ReadingsSynced,
					ReadingsFailed:  h.ReadingsFailed,
				}),
			)
		}

		return nil
	},
}

func printStats() error {
	var stats repository.Stats
	if err := getJSON("/stats", &stats); err != nil {
		return err
	}

	fmt.Printf("Episodes:         %d\n", stats.Episodes)
	fmt.Printf("Photos synced:    %d\n", stats.PhotosSynced)
	fmt.Printf("Photos failed:    %d\n", stats.PhotosFailed)
	fmt.Printf("Photos abandoned: %d\n", stats.PhotosAbandoned)
	fmt.Printf("Readings synced:  %d\n", stats.ReadingsSynced)
	return nil
}

func printAbandoned(since string) error {
	var items []model.Abandonment
	if err := getJSON("/abandoned?since="+url.QueryEscape(since), &items); err != nil {
		return err
	}

	if len(items) == 0 {
		fmt.Println("no abandoned photos")
		return nil
	}

	for _, a := range items {
		fmt.Printf("[%s] %s property=%s attempts=%d: %s\n",
			a.CreatedAt.Format("2006-01-02 15:04:05"),
			a.PhotoID, a.PropertyID, a.Attempts, a.LastError)
	}

	return nil
}

func init() {
	historyCmd.Flags().IntVar(&historyN, "n", 20, "number of history entries to show")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "show totals across all runs")
	historyCmd.Flags().StringVar(&historyAbandoned, "abandoned", "", "list photos abandoned within this window (e.g. 24h)")
	rootCmd.AddCommand(historyCmd)
}
