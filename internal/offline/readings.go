package offline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"fieldsync/internal/logger"
	"fieldsync/internal/model"
	"fieldsync/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReadingQueue is a persisted list of readings waiting to be inserted. The
// whole list is rewritten atomically on every change, which is fine for the
// small, schema-light records it holds. There is no retry bookkeeping:
// readings stay queued until they are inserted or replaced away.
type ReadingQueue struct {
	path string
	mu   sync.Mutex
}

func NewReadingQueue(path string) *ReadingQueue {
	return &ReadingQueue{path: path}
}

// Add validates the reading, assigns it an id and appends it to the queue.
func (q *ReadingQueue) Add(r model.Reading) (model.Reading, error) {
	if err := validateReading(r); err != nil {
		return model.Reading{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	readings, err := q.load()
	if err != nil {
		return model.Reading{}, err
	}

	if r.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return model.Reading{}, fmt.Errorf("failed to generate id: %w", err)
		}
		r.ID = id.String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	if err := q.save(append(readings, r)); err != nil {
		return model.Reading{}, err
	}

	return r, nil
}

func (q *ReadingQueue) GetAll() ([]model.Reading, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.load()
}

// ReplaceAll atomically overwrites the queue with readings.
func (q *ReadingQueue) ReplaceAll(readings []model.Reading) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.save(readings)
}

// Update applies fn to the current contents and persists the result under a
// single lock, so readings added concurrently are never lost.
func (q *ReadingQueue) Update(fn func([]model.Reading) []model.Reading) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	readings, err := q.load()
	if err != nil {
		return err
	}

	return q.save(fn(readings))
}

func (q *ReadingQueue) Count() (int, error) {
	readings, err := q.GetAll()
	return len(readings), err
}

func (q *ReadingQueue) load() ([]model.Reading, error) {
	data, err := os.ReadFile(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		dst, qerr := q.quarantine(data)
		if qerr != nil {
			return nil, qerr
		}
		if err := util.RemoveIfExists(q.path); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}

		logger.Log.Warn("offline reading queue is corrupt, moved aside",
			zap.String("path", q.path),
			zap.String("saved_as", dst),
			zap.Error(err))
		return nil, nil
	}

	readings := make([]model.Reading, 0, len(raw))
	for i, msg := range raw {
		var r model.Reading
		if err := json.Unmarshal(msg, &r); err != nil {
			logger.Log.Warn("skipping malformed offline reading",
				zap.Int("index", i),
				zap.Error(err))
			continue
		}
		if err := validateReading(r); err != nil {
			logger.Log.Warn("skipping invalid offline reading",
				zap.Int("index", i),
				zap.Error(err))
			continue
		}
		readings = append(readings, r)
	}

	// Keep the original bytes before the skipped entries are dropped by
	// rewriting the queue with the valid ones.
	if len(readings) < len(raw) {
		dst, err := q.quarantine(data)
		if err != nil {
			return nil, err
		}
		if err := q.save(readings); err != nil {
			return nil, err
		}

		logger.Log.Warn("offline reading queue had invalid entries, original saved",
			zap.String("path", q.path),
			zap.String("saved_as", dst),
			zap.Int("skipped", len(raw)-len(readings)))
	}

	return readings, nil
}

// quarantine copies unreadable queue content next to the queue file so it
// can be recovered by hand.
func (q *ReadingQueue) quarantine(data []byte) (string, error) {
	dst := fmt.Sprintf("%s.corrupt-%d", q.path, time.Now().UnixNano())
	if err := util.AtomicWrite(dst, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("%w: failed to save corrupt queue: %v", ErrStorageUnavailable, err)
	}

	return dst, nil
}

func (q *ReadingQueue) save(readings []model.Reading) error {
	if readings == nil {
		readings = []model.Reading{}
	}

	data, err := json.Marshal(readings)
	if err != nil {
		return err
	}

	if err := util.AtomicWrite(q.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return nil
}

func validateReading(r model.Reading) error {
	switch {
	case strings.TrimSpace(r.SourceID) == "":
		return fmt.Errorf("%w: reading has no source", ErrInvalidItem)
	case math.IsNaN(r.Value) || math.IsInf(r.Value, 0):
		return fmt.Errorf("%w: reading value is not a number", ErrInvalidItem)
	case r.EffectiveDate.IsZero():
		return fmt.Errorf("%w: reading has no effective date", ErrInvalidItem)
	}

	return nil
}
