// Package objectstore зеркалирует статус-файлы runs в S3-совместимое хранилище,
// чтобы страницы статуса не зависели от общей файловой системы.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/shaiso/scops/internal/settings"
)

// ErrNotConfigured — не заданы endpoint или bucket.
var ErrNotConfigured = errors.New("object store not configured")

// NewMinIOClient создаёт клиент хранилища.
func NewMinIOClient(cfg settings.ObjectStoreSettings) (*minio.Client, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}

	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	return minio.New(cfg.Endpoint, opts)
}

// EnsureBucket создаёт bucket, если его нет.
func EnsureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", bucket, err)
	}
	return nil
}

// Uploader — часть minio.Client, нужная Mirror.
type Uploader interface {
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Mirror загружает статус-файлы в <bucket>/<run>/status/<file>.
// Nil Mirror ничего не делает.
type Mirror struct {
	client Uploader
	bucket string
	logger *slog.Logger
}

// NewMirror создаёт Mirror.
func NewMirror(client Uploader, bucket string, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{client: client, bucket: bucket, logger: logger}
}

// ObjectKey — ключ объекта статус-файла.
func ObjectKey(runID, file string) string {
	return path.Join(runID, "status", filepath.Base(file))
}

// Upload загружает файлы. Ошибки отдельных файлов собираются,
// остальные файлы всё равно загружаются.
func (m *Mirror) Upload(ctx context.Context, runID string, files []string) error {
	if m == nil || len(files) == 0 {
		return nil
	}

	var errs []error
	uploaded := 0
	for _, f := range files {
		key := ObjectKey(runID, f)
		_, err := m.client.FPutObject(ctx, m.bucket, key, f, minio.PutObjectOptions{
			ContentType: "text/plain",
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("upload %s: %w", key, err))
			continue
		}
		uploaded++
	}

	m.logger.Debug("status mirrored", "run_id", runID, "bucket", m.bucket, "uploaded", uploaded, "failed", len(errs))
	return errors.Join(errs...)
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
