package repository

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"fieldsync/internal/db"
	"fieldsync/internal/model"
)

func openTestDB(t *testing.T) {
	t.Helper()

	if err := db.Init(filepath.Join(t.TempDir(), "test.db")); err != nil {
		t.Fatalf("db init: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
}

func TestSettingRepositoryGetSet(t *testing.T) {
	openTestDB(t)
	repo := NewSettingRepository()

	if _, ok, err := repo.Get(model.SettingSyncPaused); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := repo.Set(model.SettingSyncPaused, model.SettingTrue); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := repo.Set(model.SettingSyncPaused, model.SettingFalse); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	v, ok, err := repo.Get(model.SettingSyncPaused)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if v != model.SettingFalse {
		t.Fatalf("expected %q, got %q", model.SettingFalse, v)
	}

	if err := repo.Delete(model.SettingSyncPaused); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := repo.Get(model.SettingSyncPaused); ok {
		t.Fatal("expected key to be gone after delete")
	}
}

func TestHistoryRepositoryRecordsDrains(t *testing.T) {
	openTestDB(t)
	repo := NewHistoryRepository()

	base := time.Now().Add(-time.Hour)
	for i := range 3 {
		s := model.DrainSummary{
			Trigger:      model.TriggerManual,
			StartedAt:    base.Add(time.Duration(i) * time.Minute),
			FinishedAt:   base.Add(time.Duration(i)*time.Minute + time.Second),
			PhotosSynced: 2,
			PhotosFailed: 1,
		}
		if err := repo.RecordDrain(s); err != nil {
			t.Fatalf("record drain %d: %v", i, err)
		}
	}

	recent, err := repo.GetRecent(2)
	if err != nil {
		t.Fatalf("get recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(recent))
	}
	if !recent[0].StartedAt.After(recent[1].StartedAt) {
		t.Fatalf("expected newest first, got %v then %v", recent[0].StartedAt, recent[1].StartedAt)
	}

	stats, err := repo.GetStats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Episodes != 3 || stats.PhotosSynced != 6 || stats.PhotosFailed != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestHistoryRepositoryRecordAbandonment(t *testing.T) {
	openTestDB(t)
	repo := NewHistoryRepository()

	photo := model.PendingPhoto{
		ID:       "p-1",
		Metadata: model.PhotoMetadata{PropertyID: "prop-9", CapturedAt: time.Now()},
	}
	if err := repo.RecordAbandonment(photo, 3, errors.New("timeout")); err != nil {
		t.Fatalf("record: %v", err)
	}

	items, err := repo.GetAbandoned(time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("get abandoned: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 abandonment, got %d", len(items))
	}
	if items[0].PhotoID != "p-1" || items[0].Attempts != 3 || items[0].LastError != "timeout" {
		t.Fatalf("unexpected abandonment row: %+v", items[0])
	}
}
