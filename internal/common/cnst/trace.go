package cnst

// Tracer names used across the services
const (
	// TraceRealtime is the tracer name for the fan-out hub
	TraceRealtime = "inboxhub/realtime"
	// TraceOutbox is the tracer name for the client action outbox
	TraceOutbox = "inboxhub/outbox"
)

// Common span names
const (
	SpanPublish       = "realtime.publish"
	SpanBusRelay      = "realtime.bus.relay"
	SpanStreamConnect = "realtime.stream.connect"
	SpanOutboxFlush   = "outbox.flush"
	SpanOutboxReplay  = "outbox.replay"
)
