package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fieldsync/internal/capture"
	"fieldsync/internal/connectivity"
	"fieldsync/internal/daemon"
	"fieldsync/internal/db"
	"fieldsync/internal/logger"
	"fieldsync/internal/model"
	"fieldsync/internal/offline"
	"fieldsync/internal/repository"
	"fieldsync/internal/syncer"
	"fieldsync/internal/syncer/dropbox"
	"fieldsync/internal/syncer/gdrive"
	"fieldsync/internal/syncer/objectstore"
	"fieldsync/internal/syncer/rest"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the capture and sync daemon",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	defer logger.Sync()
	defer func() { _ = db.Close() }()

	deviceID, err := model.LoadOrCreateDeviceID(cfg.DataDir)
	if err != nil {
		return err
	}

	photos := offline.NewPhotoStore(cfg.PhotoDBPath)
	if err := photos.Init(); err != nil {
		return err
	}
	defer func() { _ = photos.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	uploader, err := newUploader(ctx, deviceID)
	if err != nil {
		return err
	}

	var inserter syncer.Inserter
	if cfg.Backend.URL != "" {
		if inserter, err = rest.NewInserter(cfg.Backend, deviceID); err != nil {
			return err
		}
	} else {
		logger.Log.Warn("backend url not configured, readings will stay queued")
	}

	monitor := connectivity.NewMonitor(cfg.Connectivity.InitialOnline)
	if cfg.Connectivity.ProbeURL != "" {
		prober := connectivity.NewHTTPProber(cfg.Connectivity.ProbeURL, cfg.Connectivity.Timeout)
		go monitor.Run(ctx, prober, cfg.Connectivity.Interval)
	}

	history := repository.NewHistoryRepository()
	orch, err := daemon.NewOrchestrator(daemon.Options{
		Photos:      photos,
		Readings:    offline.NewReadingQueue(cfg.ReadingsPath),
		Uploader:    uploader,
		Inserter:    inserter,
		Flags:       repository.NewSettingRepository(),
		Recorder:    history,
		Network:     monitor,
		Prefix:      cfg.Upload.Prefix,
		MaxAttempts: cfg.MaxAttempts,
	})
	if err != nil {
		return err
	}

	if err := orch.Start(); err != nil {
		return err
	}

	var inbox *capture.Inbox
	if cfg.Inbox.Dir != "" {
		if inbox, err = capture.NewInbox(cfg.Inbox, orch); err != nil {
			return err
		}
		if err := inbox.Start(); err != nil {
			return err
		}
	}

	srv := daemon.NewServer(orch, monitor, history, cfg.DaemonPort)
	srv.Start()

	logger.Log.Info("fieldsync daemon started",
		zap.String("device_id", deviceID),
		zap.String("backend", cfg.Upload.Backend),
		zap.Int("port", cfg.DaemonPort))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Log.Info("shutting down",
			zap.String("signal", sig.String()))
	case <-srv.StopCh():
		logger.Log.Info("stop requested via API")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Log.Warn("failed to stop server", zap.Error(err))
	}
	if inbox != nil {
		inbox.Stop()
	}
	cancel()

	return orch.Stop(shutdownCtx)
}

func newUploader(ctx context.Context, deviceID string) (syncer.Uploader, error) {
	switch cfg.Upload.Backend {
	case "minio", "s3":
		return objectstore.NewUploader(ctx, cfg.MinIO, deviceID)
	case "gdrive":
		return gdrive.NewUploader(ctx, cfg.GDrive.Folder, deviceID)
	case "dropbox":
		return dropbox.NewUploader(cfg.Dropbox.Folder)
	default:
		return nil, fmt.Errorf("unsupported upload backend: %q", cfg.Upload.Backend)
	}
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
