package realtime

import (
	"context"
	"errors"

	"github.com/amoylab/inboxhub/internal/common/cnst"
	"github.com/amoylab/inboxhub/pkg/metrics"
	"github.com/amoylab/inboxhub/pkg/trace"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Publisher delivers an event to every channel its scope matches. Delivery
// is best effort: the only error returned is ErrInvalidEvent.
type Publisher interface {
	Publish(ctx context.Context, ev *Event) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, ev *Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev *Event) error { return f(ctx, ev) }

// LocalPublisher fans events out to the channels of one process
type LocalPublisher struct {
	registry *Registry
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewLocalPublisher creates a publisher over registry. m may be nil.
func NewLocalPublisher(registry *Registry, logger *zap.Logger, m *metrics.Metrics) *LocalPublisher {
	return &LocalPublisher{
		registry: registry,
		logger:   logger.Named("realtime.publisher"),
		metrics:  m,
	}
}

// Publish implements Publisher
func (p *LocalPublisher) Publish(ctx context.Context, ev *Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	span := trace.Tracer(cnst.TraceRealtime).Start(ctx, cnst.SpanPublish).
		WithAttrs(
			attribute.String("event.type", string(ev.Type)),
			attribute.String("event.scope", ev.Scope.String()),
		)
	defer span.End()

	delivered, failed := p.Deliver(ev)
	span.WithAttrs(attribute.Int("delivered", delivered), attribute.Int("failed", failed))
	return nil
}

// Deliver sends ev to each matching channel and reports how many accepted
// and how many refused it. A refusing channel never stops the loop.
func (p *LocalPublisher) Deliver(ev *Event) (delivered, failed int) {
	var targets []*Channel
	if ev.Scope.Broadcast {
		targets = p.registry.All()
	} else {
		targets = p.registry.ChannelsFor(ev.Scope.RoutingKey)
	}

	for _, ch := range targets {
		if err := ch.Send(ev); err != nil {
			failed++
			reason := metrics.DeliveryClosed
			if errors.Is(err, ErrChannelFull) {
				reason = metrics.DeliveryFull
			}
			p.metrics.DeliveryFailed(reason)
			p.logger.Debug("delivery failed",
				zap.String("event_type", string(ev.Type)),
				zap.String("routing_key", ch.Key()),
				zap.String("channel_id", ch.ID()),
				zap.Error(err))
			continue
		}
		delivered++
	}

	p.metrics.EventPublished(string(ev.Type), ev.Scope.Target())
	return delivered, failed
}
