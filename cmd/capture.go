package cmd

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"fieldsync/internal/model"

	"github.com/spf13/cobra"
)

var captureOpts struct {
	property   string
	unit       string
	inspection string
}

var captureCmd = &cobra.Command{
	Use:   "capture [file]",
	Short: "Queue a photo for upload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}

		defer func(f *os.File) {
			_ = f.Close()
		}(f)

		info, err := f.Stat()
		if err != nil {
			return err
		}

		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		fields := map[string]string{
			"property_id":   captureOpts.property,
			"unit_id":       captureOpts.unit,
			"inspection_id": captureOpts.inspection,
			"captured_at":   info.ModTime().UTC().Format(time.RFC3339),
		}
		for k, v := range fields {
			if v == "" {
				continue
			}
			if err := w.WriteField(k, v); err != nil {
				return err
			}
		}

		part, err := w.CreateFormFile("file", filepath.Base(args[0]))
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, f); err != nil {
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}

		var resp struct {
			ID string `json:"id"`
		}
		if err := call(http.MethodPost, "/photos", w.FormDataContentType(), &body, &resp); err != nil {
			return err
		}

		fmt.Printf("photo queued: id=%s\n", resp.ID)
		return nil
	},
}

var photosCmd = &cobra.Command{
	Use:   "photos",
	Short: "List photos waiting for upload",
	RunE: func(cmd *cobra.Command, args []string) error {
		var photos []model.PendingPhoto
		if err := getJSON("/photos", &photos); err != nil {
			return err
		}

		if len(photos) == 0 {
			fmt.Println("no pending photos")
			return nil
		}

		fmt.Printf("%-36s %-12s %-8s %-6s %s\n", "ID", "PROPERTY", "SIZE", "RETRY", "CAPTURED")
		for _, p := range photos {
			fmt.Printf("%-36s %-12s %-8d %-6d %s\n",
				p.ID, p.Metadata.PropertyID, p.Size, p.RetryCount,
				p.Metadata.CapturedAt.Format("2006-01-02 15:04:05"))
		}

		return nil
	},
}

func init() {
	captureCmd.Flags().StringVar(&captureOpts.property, "property", "", "property id")
	captureCmd.Flags().StringVar(&captureOpts.unit, "unit", "", "unit id")
	captureCmd.Flags().StringVar(&captureOpts.inspection, "inspection", "", "inspection id")
	rootCmd.AddCommand(captureCmd, photosCmd)
}
