// Package objectstore uploads photos to an S3-compatible bucket through the
// MinIO client.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"fieldsync/internal/config"
	"fieldsync/internal/logger"
	"fieldsync/internal/syncer"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

type Uploader struct {
	client    *minio.Client
	bucket    string
	publicURL string
	deviceID  string
}

func NewUploader(ctx context.Context, cfg config.MinIOConfig, deviceID string) (*Uploader, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is not configured")
	}

	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	u := &Uploader{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
		deviceID:  deviceID,
	}
	if u.publicURL == "" {
		u.publicURL = client.EndpointURL().String() + "/" + cfg.Bucket
	}

	// The bucket check needs the network; a device that starts offline
	// still has to come up and capture.
	if exists, err := client.BucketExists(ctx, cfg.Bucket); err != nil {
		logger.Log.Warn("could not verify minio bucket",
			zap.String("bucket", cfg.Bucket),
			zap.Error(err))
	} else if !exists {
		return nil, fmt.Errorf("minio bucket %q does not exist", cfg.Bucket)
	}

	logger.Log.Info("minio uploader ready",
		zap.String("endpoint", endpoint),
		zap.String("bucket", cfg.Bucket))

	return u, nil
}

func (u *Uploader) Upload(ctx context.Context, blob []byte, destination string, onProgress syncer.ProgressFunc) (string, error) {
	size := int64(len(blob))
	reader := syncer.NewProgressReader(bytes.NewReader(blob), size, onProgress)

	opts := minio.PutObjectOptions{
		ContentType: syncer.UploadContentType(destination, blob),
		UserMetadata: map[string]string{
			"device-id": u.deviceID,
		},
	}

	info, err := u.client.PutObject(ctx, u.bucket, destination, reader, size, opts)
	if err != nil {
		return "", syncer.Failure("put object", err)
	}

	return u.objectURL(info.Key), nil
}

func (u *Uploader) objectURL(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return u.publicURL + "/" + strings.Join(parts, "/")
}
