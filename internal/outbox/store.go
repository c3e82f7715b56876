package outbox

import (
	"context"
	"fmt"

	"github.com/amoylab/inboxhub/internal/common/cnst"
	"github.com/amoylab/inboxhub/internal/common/config"

	"go.uber.org/zap"
)

// Store persists the queue. Implementations keep entries in append order.
type Store interface {
	// Load returns every entry, oldest first
	Load(ctx context.Context) ([]*Entry, error)
	// Append persists e at the tail
	Append(ctx context.Context, e *Entry) error
	// Remove deletes the entries with the given ids. Unknown ids are ignored.
	Remove(ctx context.Context, ids ...string) error
	Close() error
}

// NewStore creates a store based on configuration
func NewStore(logger *zap.Logger, cfg *config.StorageConfig) (Store, error) {
	logger.Info("initializing outbox storage", zap.String("type", cfg.Type))
	switch cfg.Type {
	case "disk":
		return NewDiskStore(logger, cfg.Disk.Path)
	case "db":
		return NewDBStore(logger, &cfg.Database)
	default:
		return nil, fmt.Errorf("%w: %s", cnst.ErrUnsupportedStorage, cfg.Type)
	}
}
