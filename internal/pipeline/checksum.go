package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sync"

	"fieldsync/internal/logger"
	"fieldsync/internal/model"

	"go.uber.org/zap"
)

// ChecksumFilter stamps create and write events with the file's checksum and
// drops those whose content was already seen, so a photo copied into the
// inbox twice is only captured once per run.
type ChecksumFilter struct {
	// OnDuplicate, when set, is called with the path of a different file
	// whose content was already passed on. Set it before Run.
	OnDuplicate func(path string)

	mu   sync.Mutex
	seen map[string]string
}

func NewChecksumFilter() *ChecksumFilter {
	return &ChecksumFilter{
		seen: make(map[string]string),
	}
}

func (cf *ChecksumFilter) Run(inCh <-chan model.FileEvent) <-chan model.FileEvent {
	outCh := make(chan model.FileEvent, cap(inCh))

	go func() {
		defer close(outCh)

		for event := range inCh {
			if event.Type == model.EventRemove || event.Type == model.EventRename {
				outCh <- event
				continue
			}

			sum, err := Checksum(event.Path)
			if err != nil {
				logger.Log.Debug("checksum failed, skipping",
					zap.String("path", event.Path),
					zap.Error(err))
				continue
			}

			if first, ok := cf.markSeen(sum, event.Path); !ok {
				// a repeated event for the file already passed on is not a copy
				if first == event.Path {
					continue
				}

				if cf.OnDuplicate != nil {
					cf.OnDuplicate(event.Path)
				} else {
					logger.Log.Warn("duplicate capture skipped, remove the file to stop it being captured again after a restart",
						zap.String("path", event.Path),
						zap.String("original", first),
						zap.String("sha256", sum))
				}
				continue
			}

			event.Checksum = sum
			outCh <- event
		}
	}()

	return outCh
}

// Forget allows content to be captured again, used when ingest fails.
func (cf *ChecksumFilter) Forget(sum string) {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	delete(cf.seen, sum)
}

// markSeen records sum for path. If sum was already seen it returns the path
// it was first seen at and false.
func (cf *ChecksumFilter) markSeen(sum, path string) (string, bool) {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if first, ok := cf.seen[sum]; ok {
		return first, false
	}
	cf.seen[sum] = path
	return path, true
}

func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
