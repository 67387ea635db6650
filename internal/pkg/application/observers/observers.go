// Package observers distributes pipeline lifecycle events to attached
// listeners. Dispatch is notification only, a listener can never fail a
// request.
package observers

import (
	"context"
	"sync"
	"time"
)

const (
	EventContextCreated  string = "context-created"
	EventObjectMutated   string = "object-mutated"
	EventRequestFinished string = "request-finished"
)

type Event struct {
	Name       string         `json:"name"`
	ObjectType string         `json:"objectType,omitempty"`
	Entity     string         `json:"entity,omitempty"`
	Method     string         `json:"method,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	At         time.Time      `json:"at"`
}

type Listener interface {
	Notify(ctx context.Context, event Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, event Event)

func (f ListenerFunc) Notify(ctx context.Context, event Event) {
	f(ctx, event)
}

// Dispatcher fans events out to the currently attached listeners. Listeners
// are expected to return quickly and queue any slow work themselves.
type Dispatcher struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{listeners: map[int]Listener{}}
}

// Attach registers a listener and returns the function that detaches it
// again. Detaching twice is harmless.
func (d *Dispatcher) Attach(listener Listener) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	d.listeners[id] = listener

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.listeners, id)
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	d.mu.RLock()
	attached := make([]Listener, 0, len(d.listeners))
	for _, l := range d.listeners {
		attached = append(attached, l)
	}
	d.mu.RUnlock()

	for _, l := range attached {
		l.Notify(ctx, event)
	}
}
