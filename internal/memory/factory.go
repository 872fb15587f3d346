package memory

import (
	"context"
	"fmt"

	"github.com/densefog/parley/internal/config"
	"github.com/densefog/parley/internal/memory/fs"
	"github.com/densefog/parley/internal/memory/s3"
)

// New builds the conversation store selected by cfg. The returned store
// is instrumented with metrics and tracing.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	var store Store

	switch cfg.Mode {
	case config.StorageFilesystem:
		store = fs.New(cfg.Directory)

	case config.StorageS3:
		s3Store, err := s3.NewFromConfig(ctx, s3.Config{
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		store = s3Store

	default:
		return nil, fmt.Errorf("unknown storage mode %q", cfg.Mode)
	}

	return Instrument(store), nil
}
