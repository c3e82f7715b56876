package outbox

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Prober reports whether the server is reachable. A nil error means online.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProbeFunc adapts a function to Prober
type ProbeFunc func(ctx context.Context) error

// Probe implements Prober
func (f ProbeFunc) Probe(ctx context.Context) error { return f(ctx) }

// HTTPProber sends a GET to a health URL. Any answer below 500 counts as
// online.
type HTTPProber struct {
	url    string
	client *http.Client
}

// NewHTTPProber creates a prober for url
func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		url: url,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
	}
}

// Probe implements Prober
func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("probe answered %d", resp.StatusCode)
	}
	return nil
}

// FlushFunc drains the outbox and reports whether entries were left behind
type FlushFunc func(ctx context.Context) (pending bool)

// Monitor polls a Prober and flushes on every offline to online transition.
// The monitor starts offline, so the first successful probe also counts as a
// transition. While online, a flush that left entries behind is retried on
// later healthy probes with exponential backoff, and Kick asks for a flush
// right away.
type Monitor struct {
	prober   Prober
	interval time.Duration
	flush    FlushFunc
	logger   *zap.Logger
	kick     chan struct{}

	mu      sync.Mutex
	online  bool
	pending bool
	retryAt time.Time
	backoff *backoff.ExponentialBackOff
}

// NewMonitor creates a monitor. flush runs on the goroutine calling Check or
// Run; a nil flush only tracks connectivity. maxRetry caps the backoff
// between retries of a halted queue, zero keeps the default.
func NewMonitor(prober Prober, interval, maxRetry time.Duration, logger *zap.Logger, flush FlushFunc) *Monitor {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	if maxRetry > 0 {
		b.MaxInterval = maxRetry
	}
	if b.MaxInterval < interval {
		b.MaxInterval = interval
	}
	return &Monitor{
		prober:   prober,
		interval: interval,
		flush:    flush,
		logger:   logger.Named("outbox.monitor"),
		kick:     make(chan struct{}, 1),
		backoff:  b,
	}
}

// Online reports the result of the last probe
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Kick asks Run for a flush without waiting for the next tick. It never
// blocks; kicks arriving while one is pending are merged.
func (m *Monitor) Kick() {
	m.mu.Lock()
	m.pending = true
	m.retryAt = time.Time{}
	m.mu.Unlock()
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// Check probes once. It flushes when connectivity came back, or when a
// previous flush left entries behind and their retry is due.
func (m *Monitor) Check(ctx context.Context) bool {
	err := m.prober.Probe(ctx)
	now := err == nil

	m.mu.Lock()
	was := m.online
	m.online = now
	due := m.pending && !time.Now().Before(m.retryAt)
	if now && !was {
		m.backoff.Reset()
	}
	m.mu.Unlock()

	switch {
	case now && !was:
		m.logger.Info("back online")
		m.runFlush(ctx)
	case now && due:
		m.runFlush(ctx)
	case !now && was:
		m.logger.Warn("gone offline, actions will sync automatically", zap.Error(err))
	}
	return now
}

func (m *Monitor) runFlush(ctx context.Context) {
	if m.flush == nil {
		return
	}
	pending := m.flush(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = pending
	if !pending {
		m.backoff.Reset()
		m.retryAt = time.Time{}
		return
	}
	wait := m.backoff.NextBackOff()
	m.retryAt = time.Now().Add(wait)
	m.logger.Debug("entries left behind, retrying later", zap.Duration("retry_in", wait))
}

// Run probes every interval until ctx is done
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.kick:
			if m.Online() {
				m.runFlush(ctx)
			}
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// FlushHook returns a FlushFunc that flushes o
func FlushHook(o *Outbox, logger *zap.Logger) FlushFunc {
	return func(ctx context.Context) bool {
		if o.Len() == 0 {
			return false
		}
		res, err := o.Flush(ctx)
		if err != nil {
			logger.Error("automatic flush failed", zap.Error(err))
			return true
		}
		logger.Info("automatic flush finished",
			zap.Int("sent", res.Sent),
			zap.Int("remaining", res.Remaining),
			zap.Bool("halted", res.Halted))
		return res.Remaining > 0
	}
}
