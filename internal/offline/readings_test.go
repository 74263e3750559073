package offline

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fieldsync/internal/model"
)

func testReading(source string, value float64) model.Reading {
	return model.Reading{
		SourceID:      source,
		Value:         value,
		EffectiveDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestReadingQueueAddAndGetAll(t *testing.T) {
	q := NewReadingQueue(filepath.Join(t.TempDir(), "readings.json"))

	empty, err := q.GetAll()
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty queue, got %v err=%v", empty, err)
	}

	r1, err := q.Add(testReading("meter-1", 120.5))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if r1.ID == "" || r1.CreatedAt.IsZero() {
		t.Fatalf("expected id and created at to be assigned: %+v", r1)
	}
	if _, err := q.Add(testReading("meter-2", 7)); err != nil {
		t.Fatalf("add: %v", err)
	}

	all, err := q.GetAll()
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 2 || all[0].SourceID != "meter-1" || all[1].Value != 7 {
		t.Fatalf("unexpected queue contents: %+v", all)
	}
}

func TestReadingQueueValidation(t *testing.T) {
	q := NewReadingQueue(filepath.Join(t.TempDir(), "readings.json"))

	cases := []struct {
		name string
		r    model.Reading
	}{
		{"missing source", testReading("", 1)},
		{"nan value", testReading("m", math.NaN())},
		{"inf value", testReading("m", math.Inf(1))},
		{"no date", model.Reading{SourceID: "m", Value: 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := q.Add(tc.r); !errors.Is(err, ErrInvalidItem) {
				t.Fatalf("expected ErrInvalidItem, got %v", err)
			}
		})
	}
}

func TestReadingQueueReplaceAllSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.json")
	q := NewReadingQueue(path)

	a, _ := q.Add(testReading("a", 1))
	_, _ = q.Add(testReading("b", 2))

	if err := q.ReplaceAll([]model.Reading{a}); err != nil {
		t.Fatalf("replace all: %v", err)
	}

	reopened := NewReadingQueue(path)
	all, err := reopened.GetAll()
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 1 || all[0].ID != a.ID {
		t.Fatalf("expected only reading a, got %+v", all)
	}

	if err := reopened.ReplaceAll(nil); err != nil {
		t.Fatalf("replace with nil: %v", err)
	}
	if n, _ := reopened.Count(); n != 0 {
		t.Fatalf("expected empty queue, got %d", n)
	}
}

func corruptCopies(t *testing.T, path string) []string {
	t.Helper()

	matches, err := filepath.Glob(path + ".corrupt-*")
	if err != nil {
		t.Fatal(err)
	}
	return matches
}

func TestReadingQueueSkipsInvalidEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.json")
	original := []byte(`[{"source_id":"ok","value":3,"effective_date":"2026-01-01T00:00:00Z"},{"source_id":""},{"value":"x"}]`)
	if err := os.WriteFile(path, original, 0644); err != nil {
		t.Fatal(err)
	}

	q := NewReadingQueue(path)
	all, err := q.GetAll()
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 1 || all[0].SourceID != "ok" {
		t.Fatalf("expected only the valid reading, got %+v", all)
	}

	copies := corruptCopies(t, path)
	if len(copies) != 1 {
		t.Fatalf("expected one saved copy, got %v", copies)
	}
	saved, err := os.ReadFile(copies[0])
	if err != nil || !bytes.Equal(saved, original) {
		t.Fatalf("saved copy = %q err=%v, want original bytes", saved, err)
	}

	if _, err := q.GetAll(); err != nil {
		t.Fatalf("second get all: %v", err)
	}
	if n := len(corruptCopies(t, path)); n != 1 {
		t.Fatalf("repaired queue should not be copied again, got %d copies", n)
	}
}

func TestReadingQueueCorruptFileSurvivesAdd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.json")
	original := []byte(`[{"id":"a","source_id":"m1","value":1,"effective_date":"2026-01-01T00:00:00Z"},` +
		`{"id":"b","source_id":"m2","value":2,"effective_date":"2026-01-01T00:00:00Z"}`)
	if err := os.WriteFile(path, original, 0644); err != nil {
		t.Fatal(err)
	}

	q := NewReadingQueue(path)
	if _, err := q.Add(testReading("m3", 3)); err != nil {
		t.Fatalf("add: %v", err)
	}

	copies := corruptCopies(t, path)
	if len(copies) != 1 {
		t.Fatalf("expected one saved copy, got %v", copies)
	}
	saved, err := os.ReadFile(copies[0])
	if err != nil || !bytes.Equal(saved, original) {
		t.Fatalf("saved copy = %q err=%v, want original bytes", saved, err)
	}

	all, err := q.GetAll()
	if err != nil || len(all) != 1 || all[0].SourceID != "m3" {
		t.Fatalf("expected only the new reading, got %+v err=%v", all, err)
	}
}

func TestReadingQueueUpdate(t *testing.T) {
	q := NewReadingQueue(filepath.Join(t.TempDir(), "readings.json"))
	_, _ = q.Add(testReading("keep", 1))
	_, _ = q.Add(testReading("drop", 2))

	err := q.Update(func(rs []model.Reading) []model.Reading {
		var out []model.Reading
		for _, r := range rs {
			if r.SourceID == "keep" {
				out = append(out, r)
			}
		}
		return out
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	all, _ := q.GetAll()
	if len(all) != 1 || all[0].SourceID != "keep" {
		t.Fatalf("unexpected contents after update: %+v", all)
	}
}
