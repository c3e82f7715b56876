package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amoylab/inboxhub/pkg/metrics"
	"go.uber.org/zap"
)

// State of a stream session
type State int32

const (
	StateAdmitted State = iota
	StateRegistered
	StateActive
	StateKeepAlive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAdmitted:
		return "admitted"
	case StateRegistered:
		return "registered"
	case StateActive:
		return "active"
	case StateKeepAlive:
		return "keepalive"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CloseReason records why a session ended
type CloseReason string

const (
	ReasonNone        CloseReason = ""
	ReasonClientAbort CloseReason = "client_abort"
	ReasonWriteError  CloseReason = "write_error"
	ReasonTimeout     CloseReason = "timeout"
	ReasonShutdown    CloseReason = "shutdown"
)

// EventWriter is the transport of a session. Only the session goroutine
// calls it, so implementations need not be safe for concurrent use.
type EventWriter interface {
	WriteEvent(ev *Event) error
}

// EventWriterFunc adapts a function to EventWriter
type EventWriterFunc func(ev *Event) error

func (f EventWriterFunc) WriteEvent(ev *Event) error { return f(ev) }

// SessionOptions tunes a session
type SessionOptions struct {
	KeepAliveInterval time.Duration
	MaxDuration       time.Duration
	ChannelBuffer     int
	// Scope is the metrics label, tenant or user
	Scope   string
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Session owns one open stream: it registers a channel, writes queued
// events and keep-alive pings to its writer and tears everything down once.
type Session struct {
	key      string
	writer   EventWriter
	registry *Registry
	opts     SessionOptions
	logger   *zap.Logger
	ch       *Channel

	state atomic.Int32

	stopOnce   sync.Once
	stop       chan struct{}
	stopReason CloseReason

	teardownOnce sync.Once
	reason       CloseReason
	done         chan struct{}
	startedAt    time.Time
}

// NewSession creates an admitted session for routing key
func NewSession(key string, w EventWriter, registry *Registry, opts SessionOptions) *Session {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Scope == "" {
		opts.Scope = ScopeTenant
	}
	ch := NewChannel(key, opts.ChannelBuffer)
	return &Session{
		key:      key,
		writer:   w,
		registry: registry,
		opts:     opts,
		ch:       ch,
		logger: opts.Logger.Named("realtime.session").With(
			zap.String("routing_key", key),
			zap.String("channel_id", ch.ID()),
		),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.ch.ID() }

func (s *Session) Key() string { return s.key }

// Channel returns the channel the session drains
func (s *Session) Channel() *Channel { return s.ch }

func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed after teardown
func (s *Session) Done() <-chan struct{} { return s.done }

// Reason is valid once Done is closed
func (s *Session) Reason() CloseReason {
	select {
	case <-s.done:
		return s.reason
	default:
		return ReasonNone
	}
}

// Close asks the session to end with reason. Safe from any goroutine; only
// the first request counts.
func (s *Session) Close(reason CloseReason) {
	s.stopOnce.Do(func() {
		s.stopReason = reason
		close(s.stop)
	})
}

// Run registers the session and serves it until ctx is cancelled, a write
// fails, the maximum duration passes or Close is called.
func (s *Session) Run(ctx context.Context) CloseReason {
	select {
	case <-s.stop:
		s.teardown(s.stopReason)
		return s.reason
	default:
	}

	s.startedAt = time.Now()
	s.registry.Register(s.key, s.ch)
	s.state.Store(int32(StateRegistered))
	s.opts.Metrics.SessionOpened(s.opts.Scope)

	connected, err := NewEvent(KindConnected, ToKey(s.key), map[string]string{"routingKey": s.key})
	if err == nil {
		err = s.writer.WriteEvent(connected)
	}
	if err != nil {
		s.logger.Debug("failed to write connected event", zap.Error(err))
		s.teardown(ReasonWriteError)
		return s.reason
	}
	s.state.Store(int32(StateActive))

	var ticker *time.Ticker
	var tick <-chan time.Time
	if s.opts.KeepAliveInterval > 0 {
		ticker = time.NewTicker(s.opts.KeepAliveInterval)
		tick = ticker.C
	}
	var deadline <-chan time.Time
	if s.opts.MaxDuration > 0 {
		timer := time.NewTimer(s.opts.MaxDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	reason := s.loop(ctx, tick, deadline)
	if ticker != nil {
		ticker.Stop()
	}
	s.teardown(reason)
	return s.reason
}

func (s *Session) loop(ctx context.Context, tick, deadline <-chan time.Time) CloseReason {
	for {
		select {
		case <-ctx.Done():
			return ReasonClientAbort
		case <-s.stop:
			return s.stopReason
		case <-deadline:
			return ReasonTimeout
		case <-tick:
			s.state.Store(int32(StateKeepAlive))
			ping, _ := NewEvent(KindPing, ToKey(s.key), map[string]int64{"ts": time.Now().UnixMilli()})
			if err := s.writer.WriteEvent(ping); err != nil {
				s.logger.Debug("keep-alive write failed", zap.Error(err))
				return ReasonWriteError
			}
			s.state.Store(int32(StateActive))
		case ev := <-s.ch.Events():
			if err := s.writer.WriteEvent(ev); err != nil {
				s.logger.Debug("event write failed", zap.String("event_type", string(ev.Type)), zap.Error(err))
				return ReasonWriteError
			}
		}
	}
}

func (s *Session) teardown(reason CloseReason) {
	s.teardownOnce.Do(func() {
		s.state.Store(int32(StateClosing))
		s.registry.Deregister(s.key, s.ch)
		s.ch.Close()
		s.reason = reason
		if !s.startedAt.IsZero() {
			s.opts.Metrics.SessionClosed(s.opts.Scope, string(reason), s.startedAt)
			s.logger.Debug("session closed",
				zap.String("reason", string(reason)),
				zap.Duration("lifetime", time.Since(s.startedAt)))
		}
		s.state.Store(int32(StateClosed))
		close(s.done)
	})
}
