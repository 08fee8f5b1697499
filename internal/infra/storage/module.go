package storage

import (
	"context"

	"go.uber.org/fx"

	"github.com/pedalmetry/pedalmetry/internal/config"
	"github.com/pedalmetry/pedalmetry/internal/support/exception"
)

// NewObjectStore builds the configured storage backend.
func NewObjectStore(ctx context.Context, cfg *config.StorageConfig) (ObjectStore, error) {
	switch cfg.Type {
	case "local":
		return NewLocalStore(cfg.BasePath)
	case "gcs":
		return NewGCSStore(ctx, cfg.Bucket, cfg.Prefix, cfg.CredentialsFile)
	default:
		return nil, exception.NewBatchErrorf(moduleName, "unknown storage type '%s'", cfg.Type)
	}
}

// Module provides the storage backend to Fx.
var Module = fx.Options(
	fx.Provide(func(cfg *config.StorageConfig) (ObjectStore, error) {
		return NewObjectStore(context.Background(), cfg)
	}),
)
