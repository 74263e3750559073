package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fieldsync/internal/connectivity"
	"fieldsync/internal/model"
	"fieldsync/internal/offline"
	"fieldsync/internal/syncer"
)

var errBoom = errors.New("boom")

// fakeUploader records calls and fails when fail returns an error.
type fakeUploader struct {
	mu    sync.Mutex
	calls []string
	dests []string
	blobs []string
	fail  func(id string, attempt int) error

	// entered and release let a test hold an upload in flight.
	entered chan struct{}
	release chan struct{}
}

func (u *fakeUploader) Upload(ctx context.Context, blob []byte, destination string, onProgress syncer.ProgressFunc) (string, error) {
	id := filepath.Base(destination)
	id = id[:len(id)-len(filepath.Ext(id))]

	u.mu.Lock()
	attempt := 0
	for _, c := range u.calls {
		if c == id {
			attempt++
		}
	}
	u.calls = append(u.calls, id)
	u.dests = append(u.dests, destination)
	u.blobs = append(u.blobs, string(blob))
	fail := u.fail
	u.mu.Unlock()

	if u.entered != nil {
		u.entered <- struct{}{}
		<-u.release
	}
	if err := ctx.Err(); err != nil {
		return "", syncer.Failure("upload", err)
	}

	if onProgress != nil {
		onProgress(int64(len(blob)), int64(len(blob)))
	}

	if fail != nil {
		if err := fail(id, attempt); err != nil {
			return "", syncer.Failure("upload", err)
		}
	}

	return "https://example.com/" + destination, nil
}

func (u *fakeUploader) callCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.calls)
}

func (u *fakeUploader) callsFor(id string) int {
	u.mu.Lock()
	defer u.mu.Unlock()

	n := 0
	for _, c := range u.calls {
		if c == id {
			n++
		}
	}
	return n
}

type fakeInserter struct {
	mu       sync.Mutex
	inserted []string
	fail     map[string]bool
	onInsert func(r model.Reading)
}

func (i *fakeInserter) Insert(ctx context.Context, r model.Reading) error {
	if i.onInsert != nil {
		i.onInsert(r)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.fail[r.SourceID] {
		return syncer.Failure("insert", errBoom)
	}
	i.inserted = append(i.inserted, r.SourceID)
	return nil
}

type memFlags struct {
	mu     sync.Mutex
	values map[string]string
}

func (f *memFlags) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *memFlags) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values == nil {
		f.values = make(map[string]string)
	}
	f.values[key] = value
	return nil
}

type memRecorder struct {
	mu        sync.Mutex
	drains    []model.DrainSummary
	abandoned []string
}

func (r *memRecorder) RecordDrain(summary model.DrainSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drains = append(r.drains, summary)
	return nil
}

func (r *memRecorder) RecordAbandonment(photo model.PendingPhoto, attempts int, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abandoned = append(r.abandoned, photo.ID)
	return nil
}

func (r *memRecorder) drainCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.drains)
}

type harness struct {
	orch     *Orchestrator
	photos   *offline.PhotoStore
	readings *offline.ReadingQueue
	uploader *fakeUploader
	inserter *fakeInserter
	flags    *memFlags
	recorder *memRecorder
	monitor  *connectivity.Monitor
}

func newHarness(t *testing.T, online bool) *harness {
	t.Helper()
	return newHarnessWithNetwork(t, online, nil)
}

// newHarnessWithNetwork lets a test wrap the monitor before the orchestrator
// sees it. wrap may be nil.
func newHarnessWithNetwork(t *testing.T, online bool, wrap func(*connectivity.Monitor) Network) *harness {
	t.Helper()

	dir := t.TempDir()
	h := &harness{
		photos:   offline.NewPhotoStore(filepath.Join(dir, "photos.db")),
		readings: offline.NewReadingQueue(filepath.Join(dir, "readings.json")),
		uploader: &fakeUploader{},
		inserter: &fakeInserter{},
		flags:    &memFlags{},
		recorder: &memRecorder{},
		monitor:  connectivity.NewMonitor(online),
	}
	if err := h.photos.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { _ = h.photos.Close() })

	var network Network = h.monitor
	if wrap != nil {
		network = wrap(h.monitor)
	}

	orch, err := NewOrchestrator(Options{
		Photos:   h.photos,
		Readings: h.readings,
		Uploader: h.uploader,
		Inserter: h.inserter,
		Flags:    h.flags,
		Recorder: h.recorder,
		Network:  network,
		Prefix:   "properties",
	})
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}
	h.orch = orch

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Stop(ctx)
	})

	return h
}

func (h *harness) store(t *testing.T, n int) []string {
	t.Helper()

	ids := make([]string, 0, n)
	for range n {
		id, err := h.photos.Store([]byte("\xff\xd8\xff\xe0 photo"), model.PhotoMetadata{PropertyID: "p-1"})
		if err != nil {
			t.Fatalf("Store failed: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.orch.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
