package outbox

import (
	"context"

	"go.uber.org/zap"
)

// SubmitResult tells whether an action reached the server or was queued
type SubmitResult struct {
	// Queued is set when the action waits in the outbox
	Queued bool
	// Entry is the queued entry, nil when the action was sent
	Entry *Entry
}

// Connectivity is what a Client needs from a Monitor
type Connectivity interface {
	Online() bool
	Kick()
}

// Client submits actions directly while online and queues them otherwise
type Client struct {
	outbox *Outbox
	conn   Connectivity
	logger *zap.Logger
}

// NewClient creates a client over o. conn is usually a running Monitor; nil
// means always online, with queued actions left for an explicit Flush.
func NewClient(o *Outbox, conn Connectivity) *Client {
	return &Client{outbox: o, conn: conn, logger: o.logger.Named("client")}
}

func (c *Client) online() bool {
	return c.conn == nil || c.conn.Online()
}

// Submit sends a right away when online and nothing is queued ahead of it.
// Offline, behind a non-empty queue, or after a retryable failure the action
// is enqueued and a flush is requested. A rejection from the server is
// returned and not queued.
func (c *Client) Submit(ctx context.Context, a Action) (SubmitResult, error) {
	if err := a.Validate(); err != nil {
		return SubmitResult{}, err
	}

	if c.online() && c.outbox.Len() == 0 {
		direct := newEntry(a, c.outbox.opts.Now())
		err := c.outbox.replay(ctx, direct)
		if err == nil {
			return SubmitResult{}, nil
		}
		if !IsRetryable(err) {
			return SubmitResult{}, err
		}
		c.logger.Debug("submit failed, queueing", zap.Error(err))
	}

	e, err := c.outbox.Enqueue(ctx, a)
	if err != nil {
		return SubmitResult{}, err
	}
	if c.conn != nil {
		c.conn.Kick()
	}
	return SubmitResult{Queued: true, Entry: e}, nil
}
