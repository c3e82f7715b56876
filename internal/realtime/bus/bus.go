// Package bus relays events between hub processes. Every backend publishes
// to a shared medium and feeds what it receives into the local publisher of
// its own process.
package bus

import (
	"context"
	"fmt"

	"github.com/amoylab/inboxhub/internal/common/cnst"
	"github.com/amoylab/inboxhub/internal/common/config"
	"github.com/amoylab/inboxhub/internal/realtime"
	"github.com/amoylab/inboxhub/pkg/metrics"
	"go.uber.org/zap"
)

// Bus is a realtime.Publisher spanning processes
type Bus interface {
	realtime.Publisher
	// Run relays remote events to the local publisher until ctx is done
	Run(ctx context.Context) error
	// Ready is closed once Run is subscribed
	Ready() <-chan struct{}
	Close() error
}

// New creates the bus selected by cfg.Type
func New(cfg config.BusConfig, local *realtime.LocalPublisher, logger *zap.Logger, m *metrics.Metrics) (Bus, error) {
	role := cnst.BusRole(cfg.Role)
	if role == "" {
		role = cnst.BusRoleBoth
	}

	switch cnst.BusType(cfg.Type) {
	case cnst.BusTypeMemory, "":
		return NewMemoryBus(local), nil
	case cnst.BusTypeRedis:
		return NewRedisBus(cfg.Redis, role, local, logger, m)
	case cnst.BusTypeNATS:
		return NewNATSBus(cfg.NATS, role, local, logger, m)
	default:
		return nil, fmt.Errorf("%w: %s", cnst.ErrUnsupportedBus, cfg.Type)
	}
}
