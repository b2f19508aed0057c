package testdoubles

import (
	"context"
	"sync"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// NotifierSpy is a circulation.Notifier that captures events. If Err is set, Notify returns it
// after capturing the event.
type NotifierSpy struct {
	Err    error
	events []circulation.Event
	mu     sync.Mutex
}

// NewNotifierSpy creates a new NotifierSpy.
func NewNotifierSpy() *NotifierSpy {
	return &NotifierSpy{events: make([]circulation.Event, 0)}
}

// Notify implements the Notifier interface.
func (n *NotifierSpy) Notify(_ context.Context, event circulation.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.events = append(n.events, event)

	return n.Err
}

// Events returns a copy of all captured events.
func (n *NotifierSpy) Events() []circulation.Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	events := make([]circulation.Event, len(n.events))
	copy(events, n.events)

	return events
}

// EventTypes returns the types of all captured events in emission order.
func (n *NotifierSpy) EventTypes() []circulation.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()

	types := make([]circulation.EventType, 0, len(n.events))
	for _, event := range n.events {
		types = append(types, event.Type)
	}

	return types
}

var _ circulation.Notifier = (*NotifierSpy)(nil)
