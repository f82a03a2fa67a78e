package storage

import (
	"context"
	"fmt"
	"strings"

	appconfig "github.com/timmy/prodimport/internal/config"
)

// NewFileStore creates a FileStore based on the configuration.
// Parameters:
//   - ctx: context for the bucket check on S3 backends.
//   - cfg: storage configuration; Type "local" uses LocalDir, anything else a bucket.
// Returns:
//   - FileStore: initialized storage implementation.
//   - error: non-nil if the backend cannot be created.
func NewFileStore(ctx context.Context, cfg *appconfig.StorageConfig) (FileStore, error) {
	storeType := StorageType(strings.ToLower(cfg.Type))
	if storeType == "" {
		if cfg.Endpoint == "" && cfg.Bucket == "" {
			storeType = StorageTypeLocal
		} else {
			// Auto-detect storage type if not specified
			storeType = detectStorageType(cfg.Endpoint)
		}
	}

	switch storeType {
	case StorageTypeLocal:
		local, err := NewLocalStorage(cfg.LocalDir)
		if err != nil {
			return nil, err
		}
		return local, nil
	case StorageTypeS3, StorageTypeR2, StorageTypeS3Compatible:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("storage type %s requires a bucket", storeType)
		}
		s3Store, err := NewS3Storage(ctx, &S3Config{
			Type:      storeType,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Prefix:    cfg.Prefix,
		})
		if err != nil {
			return nil, err
		}
		if err := s3Store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s3Store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
