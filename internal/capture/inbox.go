// Package capture turns files dropped into the inbox directory into offline
// photos. It never touches the network.
package capture

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"fieldsync/internal/config"
	"fieldsync/internal/logger"
	"fieldsync/internal/model"
	"fieldsync/internal/pipeline"
	"fieldsync/internal/util"

	"go.uber.org/zap"
)

type PhotoSink interface {
	StorePhotoOffline(payload []byte, meta model.PhotoMetadata) (string, error)
}

// Inbox watches a directory laid out as <dir>/<propertyID>/<file>. Files at
// the top level are captured without a property.
type Inbox struct {
	dir       string
	cfg       config.InboxConfig
	sink      PhotoSink
	watcher   *Watcher
	checksums *pipeline.ChecksumFilter
	done      chan struct{}
}

func NewInbox(cfg config.InboxConfig, sink PhotoSink) (*Inbox, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("inbox dir is not configured")
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("invalid inbox path: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create inbox: %w", err)
	}

	checksums := pipeline.NewChecksumFilter()
	checksums.OnDuplicate = removeDuplicate

	return &Inbox{
		dir:       dir,
		cfg:       cfg,
		sink:      sink,
		checksums: checksums,
		done:      make(chan struct{}),
	}, nil
}

// removeDuplicate deletes a file whose content is already captured or being
// captured. If that capture fails the original stays in the inbox.
func removeDuplicate(path string) {
	if err := util.RemoveIfExists(path); err != nil {
		logger.Log.Warn("failed to remove duplicate capture",
			zap.String("path", path),
			zap.Error(err))
		return
	}

	logger.Log.Info("duplicate capture removed", zap.String("path", path))
}

func (i *Inbox) Start() error {
	w, err := NewWatcher(max(i.cfg.BufferSize, 1))
	if err != nil {
		return err
	}
	if err := w.Watch(i.dir); err != nil {
		_ = w.fw.Close()
		return err
	}
	i.watcher = w

	events := pipeline.Filter(w.Events(), i.cfg.IgnoreList)
	events = pipeline.Debounce(events, i.cfg.Debounce)
	events = i.checksums.Run(events)
	go i.loop(events)

	// Files left over from a previous run go through the same stages.
	_ = filepath.WalkDir(i.dir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			w.emit(model.FileEvent{Type: model.EventCreate, Path: path})
		}
		return nil
	})

	logger.Log.Info("capture inbox started", zap.String("dir", i.dir))
	return nil
}

func (i *Inbox) Stop() {
	if i.watcher == nil {
		return
	}

	i.watcher.Stop()
	<-i.done
}

func (i *Inbox) loop(events <-chan model.FileEvent) {
	defer close(i.done)

	for event := range events {
		if event.Type != model.EventCreate && event.Type != model.EventWrite {
			continue
		}

		if err := i.ingest(event); err != nil {
			logger.Log.Error("capture failed",
				zap.String("path", event.Path),
				zap.Error(err))
		}
	}
}

// ingest stores the file as an offline photo and then deletes it from the
// inbox. A file that cannot be stored stays where it is.
func (i *Inbox) ingest(event model.FileEvent) error {
	info, err := os.Stat(event.Path)
	if err != nil || !info.Mode().IsRegular() || util.IsTempFile(event.Path) {
		return nil
	}

	payload, err := os.ReadFile(event.Path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}

	meta := i.metadata(event.Path, info)
	if event.Checksum != "" {
		meta.Extra = map[string]string{"sha256": event.Checksum}
	}

	id, err := i.sink.StorePhotoOffline(payload, meta)
	if err != nil {
		if event.Checksum != "" {
			i.checksums.Forget(event.Checksum)
		}
		return err
	}

	if err := util.RemoveIfExists(event.Path); err != nil {
		logger.Log.Warn("failed to remove captured file",
			zap.String("path", event.Path),
			zap.Error(err))
	}

	logger.Log.Info("photo captured",
		zap.String("id", id),
		zap.String("file", meta.FileName),
		zap.String("property_id", meta.PropertyID))

	return nil
}

func (i *Inbox) metadata(path string, info os.FileInfo) model.PhotoMetadata {
	meta := model.PhotoMetadata{
		CapturedAt:  info.ModTime(),
		FileName:    info.Name(),
		ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
	}

	rel, err := filepath.Rel(i.dir, path)
	if err != nil {
		return meta
	}
	if parts := strings.Split(filepath.ToSlash(rel), "/"); len(parts) > 1 {
		meta.PropertyID = parts[0]
	}

	return meta
}
