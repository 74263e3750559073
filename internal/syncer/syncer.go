// Package syncer defines the remote side of the offline queues: an Uploader
// for photo blobs and an Inserter for readings. Transports live in the
// subpackages.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync/atomic"

	"fieldsync/internal/model"
)

// ErrUploadFailed wraps every transport failure returned by an adapter.
// The orchestrator treats it as transient.
var ErrUploadFailed = errors.New("upload failed")

// ProgressFunc receives the number of bytes sent so far and the total.
type ProgressFunc func(sent, total int64)

// Uploader persists a photo remotely and returns its URL. Uploading the same
// photo twice after a false negative must be harmless: at worst it leaves a
// duplicate remote object.
type Uploader interface {
	Upload(ctx context.Context, blob []byte, destination string, onProgress ProgressFunc) (string, error)
}

// Inserter persists a reading in the remote database.
type Inserter interface {
	Insert(ctx context.Context, r model.Reading) error
}

func Failure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUploadFailed, op, err)
}

// Destination builds the remote path for a photo:
// <prefix>/<property>/<yyyy>/<mm>/<dd>/<id><ext>.
func Destination(prefix string, photo model.PendingPhoto) string {
	property := sanitize(photo.Metadata.PropertyID)
	if property == "" {
		property = "unassigned"
	}

	day := photo.Metadata.CapturedAt
	if day.IsZero() {
		day = photo.CreatedAt
	}

	return path.Join(
		strings.Trim(prefix, "/"),
		property,
		day.UTC().Format("2006/01/02"),
		photo.ID+Extension(ContentType(photo)),
	)
}

// ContentType returns the declared content type or sniffs the payload.
func ContentType(photo model.PendingPhoto) string {
	if photo.Metadata.ContentType != "" {
		return photo.Metadata.ContentType
	}
	return SniffContentType(photo.Payload)
}

func SniffContentType(blob []byte) string {
	return http.DetectContentType(blob)
}

// UploadContentType is the header sent with blob. It follows the extension
// Destination picked so the stored name and the type agree, and falls back
// to sniffing for unknown extensions.
func UploadContentType(destination string, blob []byte) string {
	switch strings.ToLower(path.Ext(destination)) {
	case ".jpg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	default:
		return SniffContentType(blob)
	}
}

func Extension(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	default:
		return ".bin"
	}
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "-", "\\", "-", "..", "-").Replace(s)
	return s
}

// ProgressReader reports bytes read from R to Fn.
type ProgressReader struct {
	R     io.Reader
	Total int64
	Fn    ProgressFunc

	sent atomic.Int64
}

func NewProgressReader(r io.Reader, total int64, fn ProgressFunc) *ProgressReader {
	return &ProgressReader{R: r, Total: total, Fn: fn}
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.R.Read(b)
	if n > 0 && p.Fn != nil {
		p.Fn(p.sent.Add(int64(n)), p.Total)
	}
	return n, err
}
