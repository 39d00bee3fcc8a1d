package storage

import (
	"context"
	"fmt"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/config"
)

// NewStorage creates an ObjectStore for the configured driver.
func NewStorage(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	switch cfg.Driver {
	case "minio", "":
		return NewMinIOStorage(&MinIOConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
		})
	case "s3":
		return NewS3Storage(ctx, &S3Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
		})
	case "memory":
		return NewMemoryStorage(cfg.Bucket), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
