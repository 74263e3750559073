package offline

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fieldsync/internal/model"

	bolt "go.etcd.io/bbolt"
)

func newTestPhotoStore(t *testing.T) (*PhotoStore, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "photos.db")
	s := NewPhotoStore(path)
	if err := s.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	return s, path
}

func TestPhotoStoreInitIsIdempotentUnderConcurrency(t *testing.T) {
	s := NewPhotoStore(filepath.Join(t.TempDir(), "photos.db"))
	defer s.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Init()
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("init: %v", err)
		}
	}
}

func TestPhotoStoreInitUnavailable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewPhotoStore(filepath.Join(blocker, "photos.db"))
	err := s.Init()
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}

	if _, err := s.Store([]byte("jpeg"), model.PhotoMetadata{}); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected store to fail with ErrStorageUnavailable, got %v", err)
	}
}

func TestPhotoStoreStoreAndGetAll(t *testing.T) {
	s, _ := newTestPhotoStore(t)

	captured := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	meta := model.PhotoMetadata{CapturedAt: captured, PropertyID: "prop-1", ContentType: "image/jpeg"}

	var ids []string
	for _, payload := range []string{"a", "b", "c"} {
		id, err := s.Store([]byte(payload), meta)
		if err != nil {
			t.Fatalf("store: %v", err)
		}
		ids = append(ids, id)
	}

	photos, err := s.GetAll()
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(photos) != 3 {
		t.Fatalf("expected 3 photos, got %d", len(photos))
	}

	for i, p := range photos {
		if p.ID != ids[i] {
			t.Errorf("photo %d: expected id %s, got %s", i, ids[i], p.ID)
		}
		if p.RetryCount != 0 {
			t.Errorf("photo %d: expected retry count 0, got %d", i, p.RetryCount)
		}
		if !p.Metadata.CapturedAt.Equal(captured) || p.Metadata.PropertyID != "prop-1" {
			t.Errorf("photo %d: metadata not preserved: %+v", i, p.Metadata)
		}
		if p.CreatedAt.IsZero() {
			t.Errorf("photo %d: created at not set", i)
		}
	}
	if string(photos[1].Payload) != "b" {
		t.Fatalf("expected payload b, got %q", photos[1].Payload)
	}

	n, err := s.Count()
	if err != nil || n != 3 {
		t.Fatalf("count: n=%d err=%v", n, err)
	}
}

func TestPhotoStoreListOmitsPayloads(t *testing.T) {
	s, _ := newTestPhotoStore(t)

	id, err := s.Store([]byte("jpeg bytes"), model.PhotoMetadata{PropertyID: "prop-2"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	listed, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != id {
		t.Fatalf("expected one photo %s, got %+v", id, listed)
	}
	if listed[0].Payload != nil {
		t.Errorf("list must not load payloads, got %q", listed[0].Payload)
	}
	if listed[0].Size != len("jpeg bytes") || listed[0].Metadata.PropertyID != "prop-2" {
		t.Errorf("unexpected listing: %+v", listed[0])
	}

	full, err := s.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(full.Payload) != "jpeg bytes" {
		t.Errorf("get payload = %q", full.Payload)
	}
}

func TestPhotoStoreRejectsEmptyPayload(t *testing.T) {
	s, _ := newTestPhotoStore(t)

	if _, err := s.Store(nil, model.PhotoMetadata{}); !errors.Is(err, ErrInvalidItem) {
		t.Fatalf("expected ErrInvalidItem, got %v", err)
	}
}

func TestPhotoStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photos.db")

	s := NewPhotoStore(path)
	id, err := s.Store([]byte("jpeg-bytes"), model.PhotoMetadata{PropertyID: "p"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := s.UpdateRetryCount(id, 2); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := NewPhotoStore(path)
	defer reopened.Close()

	photos, err := reopened.GetAll()
	if err != nil {
		t.Fatalf("get all after reopen: %v", err)
	}
	if len(photos) != 1 || photos[0].ID != id {
		t.Fatalf("expected stored photo after reopen, got %+v", photos)
	}
	if photos[0].RetryCount != 2 || string(photos[0].Payload) != "jpeg-bytes" {
		t.Fatalf("unexpected photo after reopen: retry=%d payload=%q", photos[0].RetryCount, photos[0].Payload)
	}
}

func TestPhotoStoreRemoveIsIdempotent(t *testing.T) {
	s, _ := newTestPhotoStore(t)

	id, err := s.Store([]byte("x"), model.PhotoMetadata{})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	if err := s.Remove(id); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove(id); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if err := s.Remove("never-existed"); err != nil {
		t.Fatalf("remove unknown: %v", err)
	}

	if _, err := s.Get(id); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestPhotoStoreUpdateRetryCountMissing(t *testing.T) {
	s, _ := newTestPhotoStore(t)

	err := s.UpdateRetryCount("gone", 1)
	if !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestPhotoStoreUpdateRetryCountOnlyChangesCount(t *testing.T) {
	s, _ := newTestPhotoStore(t)

	meta := model.PhotoMetadata{PropertyID: "prop-7", UnitID: "4B"}
	id, err := s.Store([]byte("payload"), meta)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	before, _ := s.Get(id)

	if err := s.UpdateRetryCount(id, 1); err != nil {
		t.Fatalf("update: %v", err)
	}

	after, err := s.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", after.RetryCount)
	}
	if string(after.Payload) != string(before.Payload) || after.Metadata.UnitID != "4B" || !after.CreatedAt.Equal(before.CreatedAt) {
		t.Fatalf("fields other than retry count changed: before=%+v after=%+v", before, after)
	}
}

func TestPhotoStoreDropsInvalidRecords(t *testing.T) {
	s, path := newTestPhotoStore(t)

	good, err := s.Store([]byte("ok"), model.PhotoMetadata{})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketPhotos).Put([]byte("bad-json"), []byte("{not json")); err != nil {
			return err
		}
		// valid envelope without a payload
		return tx.Bucket(bucketPhotos).Put([]byte("no-payload"), []byte(`{"id":"no-payload"}`))
	})
	if err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	_ = db.Close()

	photos, err := s.GetAll()
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(photos) != 1 || photos[0].ID != good {
		t.Fatalf("expected only the valid photo, got %+v", photos)
	}

	n, _ := s.Count()
	if n != 1 {
		t.Fatalf("expected invalid records to be purged, count=%d", n)
	}
}
