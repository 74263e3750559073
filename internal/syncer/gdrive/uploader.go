// Package gdrive uploads photos into a Google Drive folder tree.
package gdrive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"fieldsync/internal/auth"
	"fieldsync/internal/logger"
	"fieldsync/internal/syncer"

	"go.uber.org/zap"
	"google.golang.org/api/drive/v3"
)

type Uploader struct {
	mu       sync.RWMutex
	svc      *drive.Service
	rootID   string
	folder   string
	idCache  map[string]string
	deviceID string
}

func NewUploader(ctx context.Context, folderPath, deviceID string) (*Uploader, error) {
	svc, err := auth.GDrive.NewService(ctx)
	if err != nil {
		return nil, err
	}

	u := &Uploader{
		svc:      svc,
		folder:   strings.Trim(folderPath, "/"),
		idCache:  make(map[string]string),
		deviceID: deviceID,
	}

	rootID, err := u.ensureFolderPath(ctx, "root", splitPath(folderPath))
	if err != nil {
		// Folders are resolved again per upload, so an offline start is fine.
		logger.Log.Warn("could not prepare gdrive folder",
			zap.String("folder", folderPath),
			zap.Error(err))
	} else {
		u.rootID = rootID
	}

	logger.Log.Info("gdrive uploader ready",
		zap.String("folder", folderPath),
		zap.String("folder_id", rootID))

	return u, nil
}

func (u *Uploader) Upload(ctx context.Context, blob []byte, destination string, onProgress syncer.ProgressFunc) (string, error) {
	rootID, err := u.root(ctx)
	if err != nil {
		return "", syncer.Failure("prepare folder", err)
	}

	parentID, err := u.ensureFolderPath(ctx, rootID, splitPath(path.Dir(destination)))
	if err != nil {
		return "", syncer.Failure("create parent folders", err)
	}

	size := int64(len(blob))
	reader := syncer.NewProgressReader(bytes.NewReader(blob), size, onProgress)

	f := &drive.File{
		Name:          path.Base(destination),
		Parents:       []string{parentID},
		MimeType:      syncer.UploadContentType(destination, blob),
		AppProperties: map[string]string{"device_id": u.deviceID},
	}

	created, err := u.svc.Files.Create(f).
		Context(ctx).
		Media(reader).
		Fields("id, webViewLink").
		Do()
	if err != nil {
		return "", syncer.Failure("create file", err)
	}

	if created.WebViewLink != "" {
		return created.WebViewLink, nil
	}

	return "https://drive.google.com/file/d/" + created.Id + "/view", nil
}

func (u *Uploader) root(ctx context.Context) (string, error) {
	u.mu.RLock()
	rootID := u.rootID
	u.mu.RUnlock()
	if rootID != "" {
		return rootID, nil
	}

	rootID, err := u.ensureFolderPath(ctx, "root", splitPath(u.folder))
	if err != nil {
		return "", err
	}

	u.mu.Lock()
	u.rootID = rootID
	u.mu.Unlock()

	return rootID, nil
}

// ensureFolderPath walks parts below parentID, creating missing folders.
// Resolved ids are cached by their parent-relative key.
func (u *Uploader) ensureFolderPath(ctx context.Context, parentID string, parts []string) (string, error) {
	for _, part := range parts {
		cacheKey := parentID + "/" + part

		if id := u.getCachedID(cacheKey); id != "" {
			parentID = id
			continue
		}

		id, err := u.findFolder(ctx, part, parentID)
		if err != nil {
			return "", err
		}

		if id == "" {
			id, err = u.createFolder(ctx, part, parentID)
			if err != nil {
				return "", err
			}
		}

		u.setCachedID(cacheKey, id)
		parentID = id
	}

	return parentID, nil
}

func (u *Uploader) findFolder(ctx context.Context, name, parentID string) (string, error) {
	q := fmt.Sprintf("name='%s' and '%s' in parents and mimeType='%s' and trashed=false", escapeName(name), parentID, folderMimeType)

	list, err := u.svc.Files.List().Context(ctx).Q(q).Fields("files(id)").Do()
	if err != nil {
		return "", err
	}
	if len(list.Files) == 0 {
		return "", nil
	}

	return list.Files[0].Id, nil
}

func (u *Uploader) createFolder(ctx context.Context, name, parentID string) (string, error) {
	f := &drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}

	created, err := u.svc.Files.Create(f).Context(ctx).Fields("id").Do()
	if err != nil {
		return "", fmt.Errorf("failed to create folder %s: %w", name, err)
	}

	return created.Id, nil
}

func (u *Uploader) getCachedID(key string) string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.idCache[key]
}

func (u *Uploader) setCachedID(key, id string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.idCache[key] = id
}
