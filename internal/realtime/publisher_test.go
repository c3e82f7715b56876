package realtime

import (
	"context"
	"fmt"
	"testing"

	"github.com/amoylab/inboxhub/internal/common/config"
	"github.com/amoylab/inboxhub/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func drain(ch *Channel) []*Event {
	var out []*Event
	for {
		select {
		case ev := <-ch.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

// counterSum adds up every series of a counter family
func counterSum(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var sum float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

func TestLocalPublisher_KeyIsolation(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	p := NewLocalPublisher(r, zap.NewNop(), nil)

	t1a, t1b, t2 := NewChannel("T1", 4), NewChannel("T1", 4), NewChannel("T2", 4)
	r.Register("T1", t1a)
	r.Register("T1", t1b)
	r.Register("T2", t2)

	ev, err := NewEvent(KindMessageCreated, ToKey("T1"), map[string]string{"text": "hi"})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), ev))

	assert.Equal(t, []*Event{ev}, drain(t1a))
	assert.Equal(t, []*Event{ev}, drain(t1b))
	assert.Empty(t, drain(t2))

	// user keys are distinct from the tenant key
	u := NewChannel("T1:U7", 4)
	r.Register("T1:U7", u)
	ev2, _ := NewEvent(KindTyping, ToKey("T1:U7"), nil)
	require.NoError(t, p.Publish(context.Background(), ev2))
	assert.Equal(t, []*Event{ev2}, drain(u))
	assert.Empty(t, drain(t1a))
}

func TestLocalPublisher_BestEffortBroadcast(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	m := metrics.New(config.MetricsConfig{Namespace: "test"})
	p := NewLocalPublisher(r, zap.NewNop(), m)

	var healthy []*Channel
	for i := 0; i < 4; i++ {
		key := fmt.Sprintf("T%d", i+1)
		ch := NewChannel(key, 4)
		r.Register(key, ch)
		healthy = append(healthy, ch)
	}
	broken := NewChannel("T9", 4)
	r.Register("T9", broken)
	broken.Close()
	full := NewChannel("T8", 1)
	r.Register("T8", full)
	require.NoError(t, full.Send(&Event{Type: KindPing, Scope: ToKey("T8")}))

	ev, err := NewEvent(KindConversationUpdated, Everyone(), map[string]string{"id": "c1"})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), ev))

	for _, ch := range healthy {
		assert.Equal(t, []*Event{ev}, drain(ch))
	}
	delivered, failed := p.Deliver(ev)
	assert.Equal(t, 4, delivered)
	assert.Equal(t, 2, failed)

	assert.Equal(t, 4.0, counterSum(t, m.Registry(), "test_delivery_failures_total"))
	assert.Equal(t, 2.0, counterSum(t, m.Registry(), "test_events_published_total"))
}

func TestLocalPublisher_RejectsInvalidEvents(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	ch := NewChannel("T1", 4)
	r.Register("T1", ch)
	p := NewLocalPublisher(r, zap.NewNop(), nil)

	assert.ErrorIs(t, p.Publish(context.Background(), nil), ErrInvalidEvent)
	assert.ErrorIs(t, p.Publish(context.Background(), &Event{Type: KindTyping}), ErrInvalidEvent)
	assert.ErrorIs(t, p.Publish(context.Background(), &Event{Scope: ToKey("T1")}), ErrInvalidEvent)
	assert.Empty(t, drain(ch))
}

func TestLocalPublisher_NeverDeregisters(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	ch := NewChannel("T1", 4)
	r.Register("T1", ch)
	ch.Close()

	p := NewLocalPublisher(r, zap.NewNop(), nil)
	ev, _ := NewEvent(KindTyping, ToKey("T1"), nil)
	require.NoError(t, p.Publish(context.Background(), ev))
	assert.True(t, r.Has("T1"))
}

func TestPublisherFunc(t *testing.T) {
	var got *Event
	var p Publisher = PublisherFunc(func(_ context.Context, ev *Event) error {
		got = ev
		return nil
	})
	ev, _ := NewEvent(KindTyping, ToKey("T1"), nil)
	require.NoError(t, p.Publish(context.Background(), ev))
	assert.Same(t, ev, got)
}
