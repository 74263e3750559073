package objectstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"fieldsync/internal/config"
	"fieldsync/internal/syncer"
)

// fakeS3 answers the two calls the uploader makes: a bucket HEAD and an
// object PUT.
type fakeS3 struct {
	mu       sync.Mutex
	bucket   string
	puts     []string
	types    []string
	failPuts bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodHead && strings.Trim(r.URL.Path, "/") == f.bucket:
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodHead:
		w.WriteHeader(http.StatusNotFound)
	case r.Method == http.MethodPut && f.failPuts:
		w.WriteHeader(http.StatusServiceUnavailable)
	case r.Method == http.MethodPut:
		_, _ = io.Copy(io.Discard, r.Body)
		f.puts = append(f.puts, r.URL.Path)
		f.types = append(f.types, r.Header.Get("Content-Type"))
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestUploader(t *testing.T, fake *fakeS3, bucket string) (*Uploader, error) {
	t.Helper()

	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	return NewUploader(context.Background(), config.MinIOConfig{
		Endpoint:  srv.URL,
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    bucket,
		Region:    "us-east-1",
		PublicURL: "https://cdn.example.com/photos/",
	}, "device-1")
}

func TestUpload(t *testing.T) {
	fake := &fakeS3{bucket: "property-photos"}
	u, err := newTestUploader(t, fake, "property-photos")
	if err != nil {
		t.Fatalf("NewUploader failed: %v", err)
	}

	blob := []byte("\xff\xd8\xff\xe0 jpeg body")
	var last int64
	url, err := u.Upload(context.Background(), blob, "properties/p 1/2024/05/01/a.jpg", func(sent, total int64) {
		last = sent
	})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if url != "https://cdn.example.com/photos/properties/p%201/2024/05/01/a.jpg" {
		t.Errorf("url = %q", url)
	}
	if len(fake.puts) != 1 || fake.puts[0] != "/property-photos/properties/p 1/2024/05/01/a.jpg" {
		t.Errorf("puts = %v", fake.puts)
	}
	if last != int64(len(blob)) {
		t.Errorf("progress = %d, want %d", last, len(blob))
	}
}

func TestUploadContentTypeMatchesKey(t *testing.T) {
	fake := &fakeS3{bucket: "property-photos"}
	u, err := newTestUploader(t, fake, "property-photos")
	if err != nil {
		t.Fatalf("NewUploader failed: %v", err)
	}

	// HEIC is not sniffable, the extension carries the declared type
	if _, err := u.Upload(context.Background(), []byte("....ftypheic"), "properties/p1/2024/05/01/b.heic", nil); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if len(fake.types) != 1 || fake.types[0] != "image/heic" {
		t.Errorf("content types = %v, want [image/heic]", fake.types)
	}
}

func TestMissingBucket(t *testing.T) {
	_, err := newTestUploader(t, &fakeS3{bucket: "other"}, "property-photos")
	if err == nil {
		t.Fatal("expected error for missing bucket")
	}
}

func TestUploadFailureIsWrapped(t *testing.T) {
	fake := &fakeS3{bucket: "property-photos", failPuts: true}
	u, err := newTestUploader(t, fake, "property-photos")
	if err != nil {
		t.Fatalf("NewUploader failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = u.Upload(ctx, []byte("x"), "a.jpg", nil)
	if !errors.Is(err, syncer.ErrUploadFailed) {
		t.Fatalf("err = %v, want ErrUploadFailed", err)
	}
}

func TestNewUploaderRequiresEndpoint(t *testing.T) {
	if _, err := NewUploader(context.Background(), config.MinIOConfig{Bucket: "b"}, "d"); err == nil {
		t.Fatal("expected error without endpoint")
	}
}
