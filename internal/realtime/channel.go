package realtime

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrChannelClosed = errors.New("channel closed")
	ErrChannelFull   = errors.New("channel buffer full")
)

// DefaultChannelBuffer is used when a channel is created with size <= 0
const DefaultChannelBuffer = 64

// Channel is the write side of one stream session. Publishers Send into a
// bounded queue which the owning session drains to its transport.
type Channel struct {
	id    string
	key   string
	queue chan *Event
	done  chan struct{}
	once  sync.Once
}

// NewChannel creates a channel bound to a routing key
func NewChannel(key string, size int) *Channel {
	if size <= 0 {
		size = DefaultChannelBuffer
	}
	return &Channel{
		id:    uuid.NewString(),
		key:   key,
		queue: make(chan *Event, size),
		done:  make(chan struct{}),
	}
}

func (c *Channel) ID() string { return c.id }

func (c *Channel) Key() string { return c.key }

// Send enqueues ev without blocking
func (c *Channel) Send(ev *Event) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	select {
	case c.queue <- ev:
		return nil
	case <-c.done:
		return ErrChannelClosed
	default:
		return ErrChannelFull
	}
}

// Events is drained by the owning session. It is never closed; watch Done.
func (c *Channel) Events() <-chan *Event { return c.queue }

// Done is closed by Close
func (c *Channel) Done() <-chan struct{} { return c.done }

// Close is idempotent
func (c *Channel) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Channel) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
