package outbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amoylab/inboxhub/internal/common/cnst"
	"github.com/amoylab/inboxhub/internal/common/config"
	"github.com/amoylab/inboxhub/pkg/metrics"
	"github.com/amoylab/inboxhub/pkg/trace"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Policy decides what a non-retryable rejection does to a flush
type Policy string

const (
	// PolicyHalt keeps the rejected entry at the head and stops the flush
	PolicyHalt Policy = "halt"
	// PolicyDrop removes the rejected entry and carries on
	PolicyDrop Policy = "drop"
)

// Replay results used as metric labels
const (
	resultSent     = "sent"
	resultRetry    = "retry"
	resultRejected = "rejected"
	resultDropped  = "dropped"
	resultExpired  = "expired"
	resultEvicted  = "evicted"
)

// Options tune an Outbox. Zero values mean: halt, no cap, no TTL.
type Options struct {
	ClientErrorPolicy Policy
	MaxEntries        int
	EntryTTL          time.Duration
	Logger            *zap.Logger
	Metrics           *metrics.Metrics
	// Now is used for timestamps and expiry, defaults to time.Now
	Now func() time.Time
}

// OptionsFromConfig maps the outbox section of the client configuration
func OptionsFromConfig(cfg config.OutboxConfig, logger *zap.Logger, m *metrics.Metrics) Options {
	return Options{
		ClientErrorPolicy: Policy(cfg.ClientErrorPolicy),
		MaxEntries:        cfg.MaxEntries,
		EntryTTL:          cfg.EntryTTL,
		Logger:            logger,
		Metrics:           m,
	}
}

// FlushResult summarizes one flush pass
type FlushResult struct {
	Sent      int
	Dropped   int
	Expired   int
	Remaining int
	// Halted is set when the pass stopped at an entry that is still queued
	Halted bool
	// LastError is the failure that halted the pass or the last dropped rejection
	LastError error
}

// Outbox is a durable FIFO of actions waiting for connectivity
type Outbox struct {
	store  Store
	sender Sender
	opts   Options
	logger *zap.Logger

	mu    sync.Mutex
	queue []*Entry

	// inflight is the id of the entry a Flush is replaying, guarded by mu
	inflight string

	flushMu sync.Mutex
	dropped atomic.Int64
}

// New loads the queue from store
func New(ctx context.Context, store Store, sender Sender, opts Options) (*Outbox, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ClientErrorPolicy == "" {
		opts.ClientErrorPolicy = PolicyHalt
	}

	queue, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load outbox: %w", err)
	}
	o := &Outbox{
		store:  store,
		sender: sender,
		opts:   opts,
		logger: opts.Logger.Named("outbox"),
		queue:  queue,
	}
	if len(queue) > 0 {
		o.logger.Info("outbox reloaded", zap.Int("pending", len(queue)))
	}
	opts.Metrics.OutboxPending(len(queue))
	return o, nil
}

// Enqueue appends a to the durable queue. Once the entry is stored, a queue
// over its cap drops its oldest entries, listed in Entry.Evicted. The entry
// being replayed by a running Flush is never evicted.
func (o *Outbox) Enqueue(ctx context.Context, a Action) (*Entry, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	e := newEntry(a, o.opts.Now())

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.store.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to persist entry: %w", err)
	}
	o.queue = append(o.queue, e)
	o.logger.Debug("action queued",
		zap.String("id", e.ID),
		zap.String("method", e.Method),
		zap.String("url", e.URL))

	if limit := o.opts.MaxEntries; limit > 0 && len(o.queue) > limit {
		o.evict(ctx, e, len(o.queue)-limit)
	}
	o.opts.Metrics.OutboxPending(len(o.queue))
	return e, nil
}

// evict drops up to n of the oldest entries, skipping the one in flight and
// the one just added. Callers hold o.mu.
func (o *Outbox) evict(ctx context.Context, added *Entry, n int) {
	ids := make([]string, 0, n)
	for _, v := range o.queue {
		if len(ids) == n {
			break
		}
		if v.ID == o.inflight || v == added {
			continue
		}
		ids = append(ids, v.ID)
	}
	if len(ids) == 0 {
		return
	}
	if err := o.store.Remove(ctx, ids...); err != nil {
		o.logger.Error("failed to evict, outbox stays over its cap",
			zap.Int("max_entries", o.opts.MaxEntries),
			zap.Error(err))
		return
	}

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := make([]*Entry, 0, len(o.queue)-len(ids))
	for _, v := range o.queue {
		if _, ok := drop[v.ID]; !ok {
			kept = append(kept, v)
		}
	}
	o.queue = kept
	o.dropped.Add(int64(len(ids)))
	for range ids {
		o.opts.Metrics.OutboxReplayed(resultEvicted)
	}
	added.Evicted = ids
	o.logger.Warn("outbox full, dropped oldest entries",
		zap.Int("max_entries", o.opts.MaxEntries),
		zap.Strings("evicted", ids))
}

// Pending returns a snapshot of the queue, oldest first
func (o *Outbox) Pending() []*Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Entry, len(o.queue))
	copy(out, o.queue)
	return out
}

// Len returns the number of queued entries
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Dropped returns how many entries left the queue without being sent
func (o *Outbox) Dropped() int64 {
	return o.dropped.Load()
}

// take returns the head and marks it in flight
func (o *Outbox) take() *Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return nil
	}
	o.inflight = o.queue[0].ID
	return o.queue[0]
}

func (o *Outbox) settle() {
	o.mu.Lock()
	o.inflight = ""
	o.mu.Unlock()
}

func (o *Outbox) remove(ctx context.Context, ids ...string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.store.Remove(ctx, ids...); err != nil {
		return err
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := make([]*Entry, 0, len(o.queue))
	for _, e := range o.queue {
		if _, ok := drop[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	o.queue = kept
	o.opts.Metrics.OutboxPending(len(o.queue))
	return nil
}

func (o *Outbox) expire(ctx context.Context) (int, error) {
	if o.opts.EntryTTL <= 0 {
		return 0, nil
	}
	now := o.opts.Now()
	var ids []string
	for _, e := range o.Pending() {
		if e.expired(now, o.opts.EntryTTL) {
			ids = append(ids, e.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := o.remove(ctx, ids...); err != nil {
		return 0, err
	}
	o.dropped.Add(int64(len(ids)))
	for range ids {
		o.opts.Metrics.OutboxReplayed(resultExpired)
	}
	o.logger.Warn("expired outbox entries",
		zap.Duration("ttl", o.opts.EntryTTL),
		zap.Strings("ids", ids))
	return len(ids), nil
}

// Flush replays queued entries one at a time in enqueue order. A retryable
// failure stops the pass with the failed entry and everything behind it
// still queued; sent entries are gone for good. The error is reserved for
// storage failures and ctx cancellation.
func (o *Outbox) Flush(ctx context.Context) (FlushResult, error) {
	o.flushMu.Lock()
	defer o.flushMu.Unlock()
	defer o.settle()

	span := trace.Tracer(cnst.TraceOutbox).Start(ctx, cnst.SpanOutboxFlush)
	defer span.End()
	ctx = span.Ctx

	var res FlushResult
	defer func() {
		res.Remaining = o.Len()
		span.WithAttrs(
			attribute.Int("outbox.sent", res.Sent),
			attribute.Int("outbox.dropped", res.Dropped),
			attribute.Int("outbox.expired", res.Expired),
			attribute.Int("outbox.remaining", res.Remaining),
			attribute.Bool("outbox.halted", res.Halted),
		)
	}()

	n, err := o.expire(ctx)
	if err != nil {
		span.Fail(err)
		return res, err
	}
	res.Expired = n

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		e := o.take()
		if e == nil {
			break
		}

		sendErr := o.replay(ctx, e)
		switch {
		case sendErr == nil:
			if err := o.remove(ctx, e.ID); err != nil {
				span.Fail(err)
				return res, fmt.Errorf("failed to remove sent entry %s: %w", e.ID, err)
			}
			res.Sent++
			o.opts.Metrics.OutboxReplayed(resultSent)

		case IsRetryable(sendErr) || o.opts.ClientErrorPolicy != PolicyDrop:
			res.Halted = true
			res.LastError = sendErr
			if IsRetryable(sendErr) {
				o.opts.Metrics.OutboxReplayed(resultRetry)
			} else {
				o.opts.Metrics.OutboxReplayed(resultRejected)
			}
			o.logger.Info("flush halted",
				zap.String("id", e.ID),
				zap.Int("sent", res.Sent),
				zap.Error(sendErr))
			return res, nil

		default:
			if err := o.remove(ctx, e.ID); err != nil {
				span.Fail(err)
				return res, fmt.Errorf("failed to remove rejected entry %s: %w", e.ID, err)
			}
			res.Dropped++
			res.LastError = sendErr
			o.dropped.Add(1)
			o.opts.Metrics.OutboxReplayed(resultDropped)
			o.logger.Warn("dropped rejected action",
				zap.String("id", e.ID),
				zap.String("method", e.Method),
				zap.String("url", e.URL),
				zap.Error(sendErr))
		}
	}

	if res.Sent > 0 || res.Dropped > 0 {
		o.logger.Info("outbox flushed", zap.Int("sent", res.Sent), zap.Int("dropped", res.Dropped))
	}
	return res, nil
}

func (o *Outbox) replay(ctx context.Context, e *Entry) error {
	span := trace.Tracer(cnst.TraceOutbox).Start(ctx, cnst.SpanOutboxReplay).
		WithAttrs(
			attribute.String("outbox.entry_id", e.ID),
			attribute.String("http.method", e.Method),
		)
	defer span.End()

	err := o.sender.Send(span.Ctx, e)
	span.Fail(err)
	return err
}

// Close releases the store
func (o *Outbox) Close() error {
	return o.store.Close()
}
