package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/feichai0017/document-viewer/pkg/logger"
	"github.com/feichai0017/document-viewer/pkg/storage/minio"
	"github.com/feichai0017/document-viewer/pkg/storage/s3"
)

type StorageType string

const (
	StorageTypeS3     StorageType = "s3"
	StorageTypeMinio  StorageType = "minio"
	StorageTypeMemory StorageType = "memory"
)

// Storage keeps export artifacts. Keys are chosen by the caller and the
// content type follows the key's extension.
type Storage interface {
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// CleanupBefore removes artifacts last modified before threshold.
	CleanupBefore(ctx context.Context, threshold time.Time) error
}

func NewStorage(storageType StorageType, log logger.Logger) (Storage, error) {
	switch storageType {
	case StorageTypeS3:
		return s3.GetClient(log)
	case StorageTypeMinio:
		return minio.GetClient(log)
	case StorageTypeMemory:
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
