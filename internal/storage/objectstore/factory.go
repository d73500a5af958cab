package objectstore

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/interfaces"
)

// New creates an object store from configuration. Supported types are
// "local", "s3" and "r2" (S3 API against a custom endpoint).
func New(ctx context.Context, cfg *common.ObjectsConfig, logger arbor.ILogger) (interfaces.ObjectStore, error) {
	switch cfg.Type {
	case "local", "":
		return NewLocalStore(cfg.Dir, logger)
	case "s3":
		return NewS3Store(ctx, cfg, logger)
	case "r2":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("r2 object store requires an endpoint")
		}
		return NewS3Store(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown object store type: %s", cfg.Type)
	}
}
