package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAtomicWriteReplacesContent(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "nested", "queue.json")

	if err := AtomicWrite(dst, strings.NewReader("first")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := AtomicWrite(dst, strings.NewReader("second")); err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "second" {
		t.Fatalf("expected second, got %q", data)
	}

	if _, err := os.Stat(dst + ".fieldsync.tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestRemoveIfExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := RemoveIfExists(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := RemoveIfExists(path); err != nil {
		t.Fatalf("second remove should be a no-op: %v", err)
	}
}

func TestIsTempFile(t *testing.T) {
	cases := map[string]bool{
		"queue.json.fieldsync.tmp": true,
		"queue.json":               false,
		"photo.tmp":                false,
		"/a/b/c.fieldsync.tmp":     true,
	}

	for path, want := range cases {
		if got := IsTempFile(path); got != want {
			t.Errorf("IsTempFile(%q) = %v, want %v", path, got, want)
		}
	}
}
