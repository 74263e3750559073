package cmd

import (
	"fmt"
	"strconv"
	"time"

	"fieldsync/internal/model"

	"github.com/spf13/cobra"
)

var readingOpts struct {
	date    string
	comment string
}

var readingCmd = &cobra.Command{
	Use:   "reading",
	Short: "Manage queued meter readings",
}

var readingAddCmd = &cobra.Command{
	Use:   "add [source] [value]",
	Short: "Queue a reading",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", args[1], err)
		}

		date := readingOpts.date
		if date == "" {
			date = time.Now().Format(time.DateOnly)
		}

		req := map[string]any{
			"source_id":      args[0],
			"value":          value,
			"effective_date": date,
			"comment":        readingOpts.comment,
		}

		var resp struct {
			ID string `json:"id"`
		}
		if err := postJSON("/readings", req, &resp); err != nil {
			return err
		}

		fmt.Printf("reading queued: id=%s\n", resp.ID)
		return nil
	},
}

var readingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List readings waiting for upload",
	RunE: func(cmd *cobra.Command, args []string) error {
		var readings []model.Reading
		if err := getJSON("/readings", &readings); err != nil {
			return err
		}

		if len(readings) == 0 {
			fmt.Println("no pending readings")
			return nil
		}

		fmt.Printf("%-20s %-12s %-10s %s\n", "SOURCE", "VALUE", "DATE", "COMMENT")
		for _, r := range readings {
			fmt.Printf("%-20s %-12g %-10s %s\n",
				r.SourceID, r.Value, r.EffectiveDate.Format(time.DateOnly), r.Comment)
		}

		return nil
	},
}

func init() {
	readingAddCmd.Flags().StringVar(&readingOpts.date, "date", "", "effective date (YYYY-MM-DD), defaults to today")
	readingAddCmd.Flags().StringVar(&readingOpts.comment, "comment", "", "free-text comment")
	readingCmd.AddCommand(readingAddCmd, readingListCmd)
	rootCmd.AddCommand(readingCmd)
}
