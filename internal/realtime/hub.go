package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/amoylab/inboxhub/internal/common/config"
	"github.com/amoylab/inboxhub/pkg/metrics"
	"go.uber.org/zap"
)

// ErrHubClosed is returned when a session is opened during shutdown
var ErrHubClosed = errors.New("hub is shutting down")

// Hub wires the registry, the local publisher and the live sessions of one
// process together.
type Hub struct {
	cfg      config.HubConfig
	registry *Registry
	local    *LocalPublisher
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
}

// NewHub creates a hub. m may be nil.
func NewHub(cfg config.HubConfig, logger *zap.Logger, m *metrics.Metrics) *Hub {
	registry := NewRegistry(logger)
	return &Hub{
		cfg:      cfg,
		registry: registry,
		local:    NewLocalPublisher(registry, logger, m),
		logger:   logger.Named("realtime.hub"),
		metrics:  m,
		sessions: make(map[*Session]struct{}),
	}
}

func (h *Hub) Registry() *Registry { return h.registry }

// Local returns the in-process publisher
func (h *Hub) Local() *LocalPublisher { return h.local }

// Open creates a tracked session for key. scope is the metrics label.
func (h *Hub) Open(key, scope string, w EventWriter) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}

	s := NewSession(key, w, h.registry, SessionOptions{
		KeepAliveInterval: h.cfg.KeepAliveInterval,
		MaxDuration:       h.cfg.MaxSessionDuration,
		ChannelBuffer:     h.cfg.ChannelBuffer,
		Scope:             scope,
		Logger:            h.logger,
		Metrics:           h.metrics,
	})
	h.sessions[s] = struct{}{}
	return s, nil
}

// Serve runs s to completion and forgets it
func (h *Hub) Serve(ctx context.Context, s *Session) CloseReason {
	defer func() {
		h.mu.Lock()
		delete(h.sessions, s)
		h.mu.Unlock()
	}()
	return s.Run(ctx)
}

// Sessions returns the number of tracked sessions
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown refuses new sessions, closes live ones with ReasonShutdown and
// waits for them to tear down or ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	live := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		live = append(live, s)
	}
	h.mu.Unlock()

	h.logger.Info("closing stream sessions", zap.Int("count", len(live)))
	for _, s := range live {
		s.Close(ReasonShutdown)
	}
	for _, s := range live {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
