// Package dropbox uploads photos into a Dropbox folder.
package dropbox

import (
	"bytes"
	"context"
	"fmt"

	"fieldsync/internal/auth"
	"fieldsync/internal/logger"
	"fieldsync/internal/syncer"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"go.uber.org/zap"
)

type Uploader struct {
	folderPath string
	client     files.Client
}

func NewUploader(folderPath string) (*Uploader, error) {
	client, err := auth.Dropbox.NewClient()
	if err != nil {
		return nil, err
	}

	return newUploader(client, folderPath), nil
}

func newUploader(client files.Client, folderPath string) *Uploader {
	folderPath = normalizePath(folderPath)
	if err := ensureFolder(client, folderPath); err != nil {
		logger.Log.Warn("could not prepare dropbox folder",
			zap.String("folder", folderPath),
			zap.Error(err))
	}

	logger.Log.Info("dropbox uploader ready", zap.String("folder", folderPath))

	return &Uploader{
		folderPath: folderPath,
		client:     client,
	}
}

// Upload writes blob below the configured folder. Dropbox creates missing
// parent folders on upload. A name clash is auto-renamed, so a re-upload
// after a lost response never overwrites another photo.
func (u *Uploader) Upload(ctx context.Context, blob []byte, destination string, onProgress syncer.ProgressFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", syncer.Failure("upload", err)
	}

	size := int64(len(blob))
	reader := syncer.NewProgressReader(bytes.NewReader(blob), size, onProgress)

	arg := files.NewUploadArg(joinPath(u.folderPath, destination))
	arg.Mode = &files.WriteMode{Tagged: dropbox.Tagged{Tag: files.WriteModeAdd}}
	arg.Autorename = true

	meta, err := u.client.Upload(arg, reader)
	if err != nil {
		return "", syncer.Failure("upload to dropbox", err)
	}

	return fmt.Sprintf("dropbox:%s", meta.PathDisplay), nil
}
