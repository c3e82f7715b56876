package bus

import (
	"context"

	"github.com/amoylab/inboxhub/internal/realtime"
)

// MemoryBus keeps events inside the current process
type MemoryBus struct {
	local *realtime.LocalPublisher
	ready chan struct{}
}

// NewMemoryBus creates a bus that only delivers locally
func NewMemoryBus(local *realtime.LocalPublisher) *MemoryBus {
	ready := make(chan struct{})
	close(ready)
	return &MemoryBus{local: local, ready: ready}
}

func (b *MemoryBus) Publish(ctx context.Context, ev *realtime.Event) error {
	return b.local.Publish(ctx, ev)
}

func (b *MemoryBus) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (b *MemoryBus) Ready() <-chan struct{} { return b.ready }

func (b *MemoryBus) Close() error { return nil }
