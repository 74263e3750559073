package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fieldsync/internal/connectivity"
	"fieldsync/internal/logger"
	"fieldsync/internal/model"
	"fieldsync/internal/offline"
	"fieldsync/internal/syncer"

	"go.uber.org/zap"
)

const DefaultMaxAttempts = 3

var (
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrPaused         = errors.New("sync is paused")
	ErrStopped        = errors.New("orchestrator stopped")

	errOffline = errors.New("offline")
)

// PhotoQueue is the durable photo store. List returns metadata only; the
// drain loads each payload with Get right before uploading it.
type PhotoQueue interface {
	Store(payload []byte, meta model.PhotoMetadata) (string, error)
	List() ([]model.PendingPhoto, error)
	Get(id string) (model.PendingPhoto, error)
	Remove(id string) error
	UpdateRetryCount(id string, n int) error
	Count() (int, error)
}

type ReadingStore interface {
	Add(r model.Reading) (model.Reading, error)
	GetAll() ([]model.Reading, error)
	Update(fn func([]model.Reading) []model.Reading) error
	Count() (int, error)
}

// FlagStore is the key-value layer holding the persisted pause flag.
type FlagStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

type Recorder interface {
	RecordDrain(summary model.DrainSummary) error
	RecordAbandonment(photo model.PendingPhoto, attempts int, cause error) error
}

type Network interface {
	Online() bool
	Subscribe() (<-chan connectivity.Transition, func())
}

type Options struct {
	Photos   PhotoQueue
	Readings ReadingStore
	Uploader syncer.Uploader
	Inserter syncer.Inserter
	Flags    FlagStore
	Recorder Recorder
	Network  Network

	// Prefix is the first segment of every upload destination.
	Prefix      string
	MaxAttempts int
}

// Orchestrator decides when to drain the offline queues and runs at most one
// drain at a time.
type Orchestrator struct {
	photos   PhotoQueue
	readings ReadingStore
	uploader syncer.Uploader
	inserter syncer.Inserter
	flags    FlagStore
	recorder Recorder
	network  Network

	prefix      string
	maxAttempts int

	state runState
	wg    sync.WaitGroup

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	loopDone    chan struct{}
}

func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Photos == nil || opts.Uploader == nil || opts.Flags == nil || opts.Network == nil {
		return nil, fmt.Errorf("photos, uploader, flags and network are required")
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		photos:      opts.Photos,
		readings:    opts.Readings,
		uploader:    opts.Uploader,
		inserter:    opts.Inserter,
		flags:       opts.Flags,
		recorder:    opts.Recorder,
		network:     opts.Network,
		prefix:      opts.Prefix,
		maxAttempts: maxAttempts,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start restores the persisted pause flag, reads the current connectivity,
// starts following connectivity transitions and runs a startup drain if
// there is work to do.
func (o *Orchestrator) Start() error {
	paused, err := o.loadPaused()
	if err != nil {
		logger.Log.Warn("failed to read pause flag, assuming not paused", zap.Error(err))
	}
	o.state.setPaused(paused)

	// Subscribe before reading the current value so a transition between
	// the two is delivered instead of lost.
	ch, unsubscribe := o.network.Subscribe()
	o.state.setOnline(o.network.Online())

	if err := o.refreshPending(); err != nil {
		unsubscribe()
		return err
	}

	done := make(chan struct{})
	o.state.mu.Lock()
	o.unsubscribe = unsubscribe
	o.loopDone = done
	o.state.mu.Unlock()
	go o.watch(ch, done)

	snap := o.state.snapshot()
	logger.Log.Info("sync orchestrator started",
		zap.Bool("online", snap.IsOnline),
		zap.Bool("paused", snap.Paused),
		zap.Int("pending_uploads", snap.PendingUploads),
		zap.Int("pending_readings", snap.PendingReadings))

	if snap.PendingUploads+snap.PendingReadings > 0 {
		o.trigger(model.TriggerStartup)
	}

	return nil
}

func (o *Orchestrator) watch(ch <-chan connectivity.Transition, done chan struct{}) {
	defer close(done)

	for t := range ch {
		o.state.setOnline(t.Online)
		if t.Online {
			o.trigger(model.TriggerConnectivity)
		}
	}
}

// SyncOfflinePhotos runs a drain now and returns its summary. It does not
// require the network to be reported online; a failed attempt only costs a
// retry. It returns ErrSyncInProgress if a drain is already running and
// ErrPaused while paused.
func (o *Orchestrator) SyncOfflinePhotos() (model.DrainSummary, error) {
	if err := o.begin(model.TriggerManual); err != nil {
		return model.DrainSummary{}, err
	}
	defer o.wg.Done()

	return o.drain(model.TriggerManual), nil
}

// PauseSync prevents new drains from starting. A drain already running is
// not interrupted.
func (o *Orchestrator) PauseSync() error {
	o.state.setPaused(true)
	logger.Log.Info("sync paused")

	if err := o.flags.Set(model.SettingSyncPaused, model.SettingTrue); err != nil {
		return fmt.Errorf("failed to persist pause flag: %w", err)
	}

	return nil
}

// ResumeSync clears the pause and, when online with pending items, starts a
// drain right away.
func (o *Orchestrator) ResumeSync() error {
	o.state.setPaused(false)
	logger.Log.Info("sync resumed")

	err := o.flags.Set(model.SettingSyncPaused, model.SettingFalse)
	if err != nil {
		err = fmt.Errorf("failed to persist pause flag: %w", err)
	}

	if rerr := o.refreshPending(); rerr != nil {
		logger.Log.Warn("failed to refresh pending counts", zap.Error(rerr))
	}

	snap := o.state.snapshot()
	if snap.IsOnline && snap.PendingUploads+snap.PendingReadings > 0 {
		o.trigger(model.TriggerResume)
	}

	return err
}

// StorePhotoOffline queues a photo for upload. It never touches the network.
func (o *Orchestrator) StorePhotoOffline(payload []byte, meta model.PhotoMetadata) (string, error) {
	id, err := o.photos.Store(payload, meta)
	if err != nil {
		return "", err
	}

	if n, err := o.photos.Count(); err == nil {
		o.state.setPending(n, -1)
	}

	logger.Log.Info("photo stored offline",
		zap.String("id", id),
		zap.String("property_id", meta.PropertyID),
		zap.Int("size", len(payload)))

	return id, nil
}

func (o *Orchestrator) AddReading(r model.Reading) (model.Reading, error) {
	if o.readings == nil {
		return model.Reading{}, fmt.Errorf("reading queue is not configured")
	}

	r, err := o.readings.Add(r)
	if err != nil {
		return model.Reading{}, err
	}

	if n, err := o.readings.Count(); err == nil {
		o.state.setPending(-1, n)
	}

	logger.Log.Info("reading stored offline",
		zap.String("id", r.ID),
		zap.String("source_id", r.SourceID))

	return r, nil
}

// PendingPhotos lists queued photos without their payloads.
func (o *Orchestrator) PendingPhotos() ([]model.PendingPhoto, error) {
	return o.photos.List()
}

func (o *Orchestrator) PendingReadings() ([]model.Reading, error) {
	if o.readings == nil {
		return nil, nil
	}
	return o.readings.GetAll()
}

func (o *Orchestrator) Snapshot() model.StatusSnapshot {
	return o.state.snapshot()
}

// Wait blocks until no drain is running.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Stop refuses new drains and waits for the running one. If ctx expires
// first, the in-flight upload is cancelled; every store mutation is
// transactional, so the next run starts cleanly.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.state.mu.Lock()
	o.state.stopped = true
	unsubscribe, loopDone := o.unsubscribe, o.loopDone
	o.unsubscribe = nil
	o.state.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
		<-loopDone
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.cancel()
		return nil
	case <-ctx.Done():
		logger.Log.Warn("drain still running at shutdown, cancelling")
		o.cancel()
		<-done
		return ctx.Err()
	}
}

// begin enters the Syncing state. It is the single-flight guard: the check
// and the transition happen under one lock.
func (o *Orchestrator) begin(trigger model.DrainTrigger) error {
	o.state.mu.Lock()
	defer o.state.mu.Unlock()

	switch {
	case o.state.stopped:
		return ErrStopped
	case o.state.paused:
		return ErrPaused
	case o.state.syncing:
		return ErrSyncInProgress
	case trigger != model.TriggerManual && !o.state.online:
		return errOffline
	}

	o.state.syncing = true
	o.wg.Add(1)
	return nil
}

// trigger starts a drain in the background if the state allows it.
func (o *Orchestrator) trigger(trigger model.DrainTrigger) {
	if err := o.begin(trigger); err != nil {
		logger.Log.Debug("drain not started",
			zap.String("trigger", string(trigger)),
			zap.Error(err))
		return
	}

	go func() {
		defer o.wg.Done()
		o.drain(trigger)
	}()
}

func (o *Orchestrator) drain(trigger model.DrainTrigger) model.DrainSummary {
	summary := model.DrainSummary{
		Trigger:   trigger,
		StartedAt: time.Now(),
	}

	logger.Log.Info("drain started", zap.String("trigger", string(trigger)))

	o.drainPhotos(&summary)
	o.drainReadings(&summary)

	if err := o.refreshPending(); err != nil {
		logger.Log.Warn("failed to refresh pending counts", zap.Error(err))
	}

	summary.FinishedAt = time.Now()
	o.state.finish(summary)

	if summary.Empty() {
		logger.Log.Debug("drain finished with nothing to do", zap.String("trigger", string(trigger)))
		return summary
	}

	logger.Log.Info("drain finished",
		zap.String("trigger", string(trigger)),
		zap.Int("photos_synced", summary.PhotosSynced),
		zap.Int("photos_failed", summary.PhotosFailed),
		zap.Int("photos_abandoned", summary.PhotosAbandoned),
		zap.Int("readings_synced", summary.ReadingsSynced),
		zap.Int("readings_failed", summary.ReadingsFailed),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)))

	if o.recorder != nil {
		if err := o.recorder.RecordDrain(summary); err != nil {
			logger.Log.Error("failed to record drain", zap.Error(err))
		}
	}

	return summary
}

func (o *Orchestrator) drainPhotos(summary *model.DrainSummary) {
	queued, err := o.photos.List()
	if err != nil {
		logger.Log.Error("failed to list offline photos", zap.Error(err))
		return
	}
	o.state.setPending(len(queued), -1)

	for _, item := range queued {
		photo, err := o.photos.Get(item.ID)
		if errors.Is(err, offline.ErrItemNotFound) {
			continue
		}
		if err != nil {
			logger.Log.Warn("failed to load offline photo",
				zap.String("id", item.ID),
				zap.Error(err))
			continue
		}

		url, err := o.upload(photo)
		if err == nil {
			if err := o.photos.Remove(photo.ID); err != nil {
				logger.Log.Error("failed to remove uploaded photo",
					zap.String("id", photo.ID),
					zap.Error(err))
			}
			summary.PhotosSynced++
			logger.Log.Info("photo synced",
				zap.String("id", photo.ID),
				zap.String("url", url))
			continue
		}

		summary.PhotosFailed++
		attempts := photo.RetryCount + 1

		if attempts >= o.maxAttempts {
			o.abandon(photo, attempts, err)
			summary.PhotosAbandoned++
			continue
		}

		logger.Log.Warn("photo upload failed",
			zap.String("id", photo.ID),
			zap.Int("attempts", attempts),
			zap.Error(err))

		if err := o.photos.UpdateRetryCount(photo.ID, attempts); err != nil && !errors.Is(err, offline.ErrItemNotFound) {
			logger.Log.Error("failed to update retry count",
				zap.String("id", photo.ID),
				zap.Error(err))
		}
	}
}

func (o *Orchestrator) upload(photo model.PendingPhoto) (string, error) {
	total := int64(len(photo.Payload))
	o.state.setProgress(&model.Progress{PhotoID: photo.ID, Total: total})
	defer o.state.setProgress(nil)

	onProgress := func(sent, total int64) {
		o.state.setProgress(&model.Progress{PhotoID: photo.ID, Sent: sent, Total: total})
	}

	return o.uploader.Upload(o.ctx, photo.Payload, syncer.Destination(o.prefix, photo), onProgress)
}

// abandon drops a photo that used up its attempts. The loss is logged and
// recorded, never returned.
func (o *Orchestrator) abandon(photo model.PendingPhoto, attempts int, cause error) {
	logger.Log.Warn("photo abandoned after exhausting retries",
		zap.String("id", photo.ID),
		zap.String("property_id", photo.Metadata.PropertyID),
		zap.Int("attempts", attempts),
		zap.Error(cause))

	if err := o.photos.Remove(photo.ID); err != nil {
		logger.Log.Error("failed to remove abandoned photo",
			zap.String("id", photo.ID),
			zap.Error(err))
	}

	if o.recorder != nil {
		if err := o.recorder.RecordAbandonment(photo, attempts, cause); err != nil {
			logger.Log.Error("failed to record abandonment", zap.Error(err))
		}
	}
}

// drainReadings inserts every queued reading. Failed readings stay queued
// without a retry limit. Readings added while the drain runs are kept.
func (o *Orchestrator) drainReadings(summary *model.DrainSummary) {
	if o.readings == nil || o.inserter == nil {
		return
	}

	readings, err := o.readings.GetAll()
	if err != nil {
		logger.Log.Error("failed to list offline readings", zap.Error(err))
		return
	}
	if len(readings) == 0 {
		return
	}

	done := make(map[string]bool, len(readings))
	for _, r := range readings {
		if err := o.inserter.Insert(o.ctx, r); err != nil {
			summary.ReadingsFailed++
			logger.Log.Warn("reading insert failed",
				zap.String("id", r.ID),
				zap.Error(err))
			continue
		}

		done[r.ID] = true
		summary.ReadingsSynced++
	}

	err = o.readings.Update(func(current []model.Reading) []model.Reading {
		remaining := make([]model.Reading, 0, len(current))
		for _, r := range current {
			if !done[r.ID] {
				remaining = append(remaining, r)
			}
		}
		return remaining
	})
	if err != nil {
		logger.Log.Error("failed to persist remaining readings", zap.Error(err))
	}
}

func (o *Orchestrator) refreshPending() error {
	uploads, err := o.photos.Count()
	if err != nil {
		return err
	}

	readings := 0
	if o.readings != nil {
		if readings, err = o.readings.Count(); err != nil {
			return err
		}
	}

	o.state.setPending(uploads, readings)
	return nil
}

func (o *Orchestrator) loadPaused() (bool, error) {
	v, ok, err := o.flags.Get(model.SettingSyncPaused)
	if err != nil || !ok {
		return false, err
	}

	return v == model.SettingTrue, nil
}
