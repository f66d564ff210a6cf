package store

import (
	"context"
	"fmt"

	"dedup-go/internal/config"
	"dedup-go/internal/dedup"
)

// New creates the store described by the configuration. accessKeyID and
// secretAccessKey apply to the s3 type only and may be empty, in which
// case the default AWS credential chain is used.
func New(ctx context.Context, cfg config.StoreConfig, accessKeyID, secretAccessKey string) (dedup.Store, error) {
	switch cfg.Type {
	case "s3":
		return NewS3Store(ctx, S3Options{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			KeyPrefix:       cfg.KeyPrefix,
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
		})
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem store requires a root directory")
		}
		return NewFilesystemStore(cfg.Root)
	case "memory":
		// Useful for dry runs and tests only; contents vanish on exit.
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
