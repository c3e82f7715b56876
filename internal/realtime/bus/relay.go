package bus

import (
	"context"
	"encoding/json"

	"github.com/amoylab/inboxhub/internal/common/cnst"
	"github.com/amoylab/inboxhub/internal/realtime"
	"github.com/amoylab/inboxhub/pkg/metrics"
	"github.com/amoylab/inboxhub/pkg/trace"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// relay holds what every remote backend shares: encoding, local fallback
// and delivery of received messages.
type relay struct {
	backend string
	role    cnst.BusRole
	local   *realtime.LocalPublisher
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// publish validates ev, hands the encoded event to send and falls back to
// local delivery when send fails or the role forbids sending.
func (r *relay) publish(ctx context.Context, ev *realtime.Event, send func(ctx context.Context, data []byte) error) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if !r.role.CanSend() {
		return r.local.Publish(ctx, ev)
	}

	data, err := json.Marshal(ev)
	if err == nil {
		err = send(ctx, data)
	}
	if err != nil {
		r.metrics.BusError(r.backend, "publish")
		r.logger.Warn("bus publish failed, delivering locally",
			zap.String("event_type", string(ev.Type)),
			zap.String("scope", ev.Scope.String()),
			zap.Error(err))
		return r.local.Publish(ctx, ev)
	}
	return nil
}

// deliver decodes a bus message and publishes it to local sessions
func (r *relay) deliver(ctx context.Context, data []byte) {
	span := trace.Tracer(cnst.TraceRealtime).Start(ctx, cnst.SpanBusRelay).
		WithAttrs(attribute.String("bus.backend", r.backend))
	defer span.End()

	var ev realtime.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		r.metrics.BusError(r.backend, "decode")
		r.logger.Error("failed to decode bus message", zap.Error(err))
		span.Fail(err)
		return
	}
	if err := r.local.Publish(span.Ctx, &ev); err != nil {
		r.metrics.BusError(r.backend, "invalid")
		r.logger.Error("dropping invalid bus event", zap.Error(err))
		span.Fail(err)
	}
}
