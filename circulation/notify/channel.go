package notify

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// ErrEventDropped is returned when the channel buffer is full.
var ErrEventDropped = errors.New("notification channel full, event dropped")

// Channel buffers events for an in-process consumer. Notify never blocks: when the buffer is full
// the event is dropped and counted.
type Channel struct {
	events  chan circulation.Event
	dropped atomic.Uint64
}

// NewChannel creates a Channel with the given buffer size; sizes below one are raised to one.
func NewChannel(buffer int) *Channel {
	return &Channel{events: make(chan circulation.Event, max(buffer, 1))}
}

// Notify enqueues the event or drops it.
func (c *Channel) Notify(_ context.Context, event circulation.Event) error {
	select {
	case c.events <- event:
		return nil
	default:
		c.dropped.Add(1)
		return ErrEventDropped
	}
}

// Events returns the receive side. It is never closed.
func (c *Channel) Events() <-chan circulation.Event {
	return c.events
}

// Dropped returns how many events were dropped so far.
func (c *Channel) Dropped() uint64 {
	return c.dropped.Load()
}

var _ circulation.Notifier = (*Channel)(nil)
