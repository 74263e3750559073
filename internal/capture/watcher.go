package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fieldsync/internal/logger"
	"fieldsync/internal/model"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher turns fsnotify events below a directory tree into FileEvents.
// Directories created later are watched as they appear.
type Watcher struct {
	fw      *fsnotify.Watcher
	eventCh chan model.FileEvent
	doneCh  chan struct{}
}

func NewWatcher(bufferSize int) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		fw:      fw,
		eventCh: make(chan model.FileEvent, bufferSize),
		doneCh:  make(chan struct{}),
	}, nil
}

func (w *Watcher) Watch(dir string) error {
	if err := w.addRecursive(dir); err != nil {
		return err
	}

	go w.run()

	logger.Log.Info("watcher started",
		zap.String("dir", dir))
	return nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if err := w.fw.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			logger.Log.Debug("watching directory",
				zap.String("path", path))
		}

		return nil
	})
}

func (w *Watcher) run() {
	defer close(w.eventCh)

	for {
		select {
		case <-w.doneCh:
			logger.Log.Info("watcher stopping")
			return

		case fsEvent, ok := <-w.fw.Events:
			if !ok {
				return
			}

			eventType := toEventType(fsEvent.Op)
			if eventType == "" {
				continue
			}

			if fsEvent.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(fsEvent.Name); err == nil && info.IsDir() {
					w.addDir(fsEvent.Name)
					continue
				}
			}

			w.emit(model.FileEvent{
				Type:      eventType,
				Path:      fsEvent.Name,
				Timestamp: time.Now(),
			})

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}

			logger.Log.Error("watcher error",
				zap.Error(err))
		}
	}
}

// addDir watches a new directory and emits its existing files, which may
// have landed before the watch was in place.
func (w *Watcher) addDir(dir string) {
	if err := w.addRecursive(dir); err != nil {
		logger.Log.Warn("failed to watch new directory",
			zap.String("path", dir),
			zap.Error(err))
		return
	}

	logger.Log.Debug("added new directory to watch",
		zap.String("path", dir))

	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			w.emit(model.FileEvent{Type: model.EventCreate, Path: path, Timestamp: time.Now()})
		}
		return nil
	})
}

func (w *Watcher) emit(event model.FileEvent) {
	select {
	case w.eventCh <- event:
	default:
		logger.Log.Warn("event channel is full, dropping event",
			zap.String("path", event.Path))
	}
}

func (w *Watcher) Events() <-chan model.FileEvent {
	return w.eventCh
}

func (w *Watcher) Stop() {
	close(w.doneCh)
	_ = w.fw.Close()
}

func toEventType(op fsnotify.Op) model.EventType {
	switch {
	case op.Has(fsnotify.Create):
		return model.EventCreate
	case op.Has(fsnotify.Write):
		return model.EventWrite
	case op.Has(fsnotify.Remove):
		return model.EventRemove
	case op.Has(fsnotify.Rename):
		return model.EventRename
	default:
		return ""
	}
}
