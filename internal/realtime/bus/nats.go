package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/amoylab/inboxhub/internal/common/cnst"
	"github.com/amoylab/inboxhub/internal/common/config"
	"github.com/amoylab/inboxhub/internal/realtime"
	"github.com/amoylab/inboxhub/pkg/metrics"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSBus relays events through a core NATS subject
type NATSBus struct {
	relay
	nc        *nats.Conn
	subject   string
	ready     chan struct{}
	readyOnce sync.Once
}

// NewNATSBus connects to the NATS server named by cfg.URL
func NewNATSBus(cfg config.BusNATSConfig, role cnst.BusRole, local *realtime.LocalPublisher, logger *zap.Logger, m *metrics.Metrics) (*NATSBus, error) {
	lg := logger.Named("bus.nats")
	nc, err := nats.Connect(
		cfg.URL,
		nats.Name("inboxhub"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			lg.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			lg.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			lg.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSBus{
		relay: relay{
			backend: cnst.BusTypeNATS.String(),
			role:    role,
			local:   local,
			logger:  lg,
			metrics: m,
		},
		nc:      nc,
		subject: cfg.Subject,
		ready:   make(chan struct{}),
	}, nil
}

// Publish implements realtime.Publisher
func (b *NATSBus) Publish(ctx context.Context, ev *realtime.Event) error {
	return b.publish(ctx, ev, func(_ context.Context, data []byte) error {
		return b.nc.Publish(b.subject, data)
	})
}

// Run subscribes to the subject and relays messages until ctx is done
func (b *NATSBus) Run(ctx context.Context) error {
	if !b.role.CanReceive() {
		b.markReady()
		<-ctx.Done()
		return nil
	}

	sub, err := b.nc.Subscribe(b.subject, func(msg *nats.Msg) {
		b.deliver(ctx, msg.Data)
	})
	if err != nil {
		b.metrics.BusError(b.backend, "subscribe")
		return fmt.Errorf("failed to subscribe to %s: %w", b.subject, err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			b.logger.Debug("unsubscribe failed", zap.Error(err))
		}
	}()

	if err := b.nc.FlushWithContext(ctx); err != nil && ctx.Err() == nil {
		b.logger.Warn("NATS flush failed", zap.Error(err))
	}
	b.markReady()
	b.logger.Info("subscribed to event subject", zap.String("subject", b.subject))

	<-ctx.Done()
	return nil
}

func (b *NATSBus) markReady() {
	b.readyOnce.Do(func() { close(b.ready) })
}

func (b *NATSBus) Ready() <-chan struct{} { return b.ready }

// Close drains pending publishes and closes the connection
func (b *NATSBus) Close() error {
	if err := b.nc.Flush(); err != nil {
		b.logger.Debug("NATS flush failed", zap.Error(err))
	}
	b.nc.Close()
	return nil
}
