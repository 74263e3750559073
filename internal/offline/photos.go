// Package offline holds the durable local queues that let the device capture
// data while disconnected: a transactional photo store and a lightweight
// reading queue.
package offline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"fieldsync/internal/logger"
	"fieldsync/internal/model"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var (
	bucketPhotos   = []byte("photos")
	bucketPayloads = []byte("payloads")
)

// photoRecord is the on-disk envelope stored in the photos bucket. The
// payload lives in its own bucket under the same key.
type photoRecord struct {
	ID         string              `json:"id"`
	Metadata   model.PhotoMetadata `json:"metadata"`
	RetryCount int                 `json:"retry_count"`
	CreatedAt  time.Time           `json:"created_at"`
}

// PhotoStore is the durable store of photos waiting for upload. Every
// mutation runs in its own bbolt transaction, so an interrupted drain leaves
// the store consistent.
type PhotoStore struct {
	path string

	mu sync.Mutex
	db *bolt.DB
}

func NewPhotoStore(path string) *PhotoStore {
	return &PhotoStore{path: path}
}

// Init opens the store. It is safe to call repeatedly and concurrently;
// calls after the first successful one are no-ops. A failed open can be
// retried.
func (s *PhotoStore) Init() error {
	_, err := s.open()
	return err
}

func (s *PhotoStore) open() (*bolt.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	db, err := bolt.Open(s.path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketPhotos, bucketPayloads} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	s.db = db
	return db, nil
}

func (s *PhotoStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil
	return err
}

// Store writes a new photo with a zero retry count and returns its id.
func (s *PhotoStore) Store(payload []byte, meta model.PhotoMetadata) (string, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrInvalidItem)
	}

	db, err := s.open()
	if err != nil {
		return "", err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}

	now := time.Now()
	if meta.CapturedAt.IsZero() {
		meta.CapturedAt = now
	}

	rec := photoRecord{
		ID:        id.String(),
		Metadata:  meta,
		CreatedAt: now,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}

	key := []byte(rec.ID)
	err = db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketPayloads).Put(key, payload); err != nil {
			return err
		}
		return tx.Bucket(bucketPhotos).Put(key, data)
	})
	if err != nil {
		return "", fmt.Errorf("failed to store photo: %w", err)
	}

	return rec.ID, nil
}

// GetAll returns every stored photo with its payload in key order. Ids are
// time-ordered, so this is capture order in practice. Records that fail
// validation are never handed to the uploader; they are logged and purged.
func (s *PhotoStore) GetAll() ([]model.PendingPhoto, error) {
	return s.scan(true)
}

// List is GetAll without payloads. Size still reports the payload length.
func (s *PhotoStore) List() ([]model.PendingPhoto, error) {
	return s.scan(false)
}

func (s *PhotoStore) scan(withPayload bool) ([]model.PendingPhoto, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}

	var (
		photos  []model.PendingPhoto
		invalid []string
	)
	err = db.View(func(tx *bolt.Tx) error {
		payloads := tx.Bucket(bucketPayloads)

		return tx.Bucket(bucketPhotos).ForEach(func(k, v []byte) error {
			photo, err := decodePhoto(k, v, payloads.Get(k), withPayload)
			if err != nil {
				logger.Log.Warn("dropping invalid offline photo",
					zap.String("id", string(k)),
					zap.Error(err))
				invalid = append(invalid, string(k))
				return nil
			}

			photos = append(photos, photo)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}

	for _, id := range invalid {
		if err := s.Remove(id); err != nil {
			logger.Log.Warn("failed to purge invalid offline photo",
				zap.String("id", id),
				zap.Error(err))
		}
	}

	return photos, nil
}

// Get returns a single photo.
func (s *PhotoStore) Get(id string) (model.PendingPhoto, error) {
	db, err := s.open()
	if err != nil {
		return model.PendingPhoto{}, err
	}

	var photo model.PendingPhoto
	err = db.View(func(tx *bolt.Tx) error {
		key := []byte(id)
		v := tx.Bucket(bucketPhotos).Get(key)
		if v == nil {
			return ErrItemNotFound
		}

		photo, err = decodePhoto(key, v, tx.Bucket(bucketPayloads).Get(key), true)
		return err
	})

	return photo, err
}

// Remove deletes a photo. Removing an absent id is not an error.
func (s *PhotoStore) Remove(id string) error {
	db, err := s.open()
	if err != nil {
		return err
	}

	key := []byte(id)
	return db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketPhotos).Delete(key); err != nil {
			return err
		}
		return tx.Bucket(bucketPayloads).Delete(key)
	})
}

// UpdateRetryCount sets the retry count of an existing photo. It returns
// ErrItemNotFound if the photo has already been removed.
func (s *PhotoStore) UpdateRetryCount(id string, n int) error {
	if n < 0 {
		return fmt.Errorf("%w: negative retry count %d", ErrInvalidItem, n)
	}

	db, err := s.open()
	if err != nil {
		return err
	}

	key := []byte(id)
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPhotos)
		v := b.Get(key)
		if v == nil {
			return fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}

		var rec photoRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidItem, err)
		}
		rec.RetryCount = n

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		return b.Put(key, data)
	})
}

// Count returns the number of stored photos without reading payloads.
func (s *PhotoStore) Count() (int, error) {
	db, err := s.open()
	if err != nil {
		return 0, err
	}

	var n int
	err = db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketPhotos).Stats().KeyN
		return nil
	})

	return n, err
}

func decodePhoto(key, record, payload []byte, withPayload bool) (model.PendingPhoto, error) {
	var rec photoRecord
	if err := json.Unmarshal(record, &rec); err != nil {
		return model.PendingPhoto{}, fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}

	switch {
	case rec.ID != string(key):
		return model.PendingPhoto{}, fmt.Errorf("%w: id %q does not match key", ErrInvalidItem, rec.ID)
	case rec.RetryCount < 0:
		return model.PendingPhoto{}, fmt.Errorf("%w: negative retry count", ErrInvalidItem)
	case len(payload) == 0:
		return model.PendingPhoto{}, fmt.Errorf("%w: missing payload", ErrInvalidItem)
	}

	photo := model.PendingPhoto{
		ID:         rec.ID,
		Metadata:   rec.Metadata,
		RetryCount: rec.RetryCount,
		CreatedAt:  rec.CreatedAt,
		Size:       len(payload),
	}
	if withPayload {
		// bbolt memory is only valid inside the transaction
		photo.Payload = make([]byte, len(payload))
		copy(photo.Payload, payload)
	}

	return photo, nil
}
