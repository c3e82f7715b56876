package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/amoylab/inboxhub/internal/common/cnst"
	"github.com/amoylab/inboxhub/internal/common/config"
	"github.com/amoylab/inboxhub/internal/realtime"
	"github.com/amoylab/inboxhub/pkg/metrics"
	"github.com/amoylab/inboxhub/pkg/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus relays events through a Redis pub/sub channel
type RedisBus struct {
	relay
	client    redis.UniversalClient
	topic     string
	ready     chan struct{}
	readyOnce sync.Once
}

// NewRedisBus connects to Redis and verifies the connection
func NewRedisBus(cfg config.BusRedisConfig, role cnst.BusRole, local *realtime.LocalPublisher, logger *zap.Logger, m *metrics.Metrics) (*RedisBus, error) {
	addrs := utils.SplitByMultipleDelimiters(cfg.Addr, ";", ",")
	opts := &redis.UniversalOptions{
		Addrs:    addrs,
		Username: cfg.Username,
		Password: cfg.Password,
	}
	if cfg.ClusterType == cnst.RedisClusterTypeSentinel {
		opts.MasterName = cfg.MasterName
	}
	if cfg.ClusterType != cnst.RedisClusterTypeCluster {
		// can not set db in cluster mode
		opts.DB = cfg.DB
	}
	client := redis.NewUniversalClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisBus(client, cfg.Topic, role, local, logger, m), nil
}

func newRedisBus(client redis.UniversalClient, topic string, role cnst.BusRole, local *realtime.LocalPublisher, logger *zap.Logger, m *metrics.Metrics) *RedisBus {
	return &RedisBus{
		relay: relay{
			backend: cnst.BusTypeRedis.String(),
			role:    role,
			local:   local,
			logger:  logger.Named("bus.redis"),
			metrics: m,
		},
		client: client,
		topic:  topic,
		ready:  make(chan struct{}),
	}
}

// Publish implements realtime.Publisher
func (b *RedisBus) Publish(ctx context.Context, ev *realtime.Event) error {
	return b.publish(ctx, ev, func(ctx context.Context, data []byte) error {
		return b.client.Publish(ctx, b.topic, data).Err()
	})
}

// Run subscribes to the topic and relays messages until ctx is done
func (b *RedisBus) Run(ctx context.Context) error {
	if !b.role.CanReceive() {
		b.markReady()
		<-ctx.Done()
		return nil
	}

	pubsub := b.client.Subscribe(ctx, b.topic)
	defer pubsub.Close()

	// wait for the subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		b.metrics.BusError(b.backend, "subscribe")
		return fmt.Errorf("failed to subscribe to %s: %w", b.topic, err)
	}
	b.markReady()
	b.logger.Info("subscribed to event topic", zap.String("topic", b.topic))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.deliver(ctx, []byte(msg.Payload))
		}
	}
}

func (b *RedisBus) markReady() {
	b.readyOnce.Do(func() { close(b.ready) })
}

func (b *RedisBus) Ready() <-chan struct{} { return b.ready }

func (b *RedisBus) Close() error {
	return b.client.Close()
}
