package events

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Envelope is the immutable wrapper every listener receives. Name, payload
// and metadata are fixed at dispatch time; listeners must not retain and
// mutate the metadata map.
type Envelope struct {
	Name     string
	Payload  any
	Metadata map[string]any
}

// Listener handles one dispatched event. Returning an error aborts the
// dispatch chain; the dispatcher never swallows listener failures.
type Listener interface {
	Handle(ctx context.Context, event Envelope) error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, event Envelope) error

// Handle calls the wrapped function.
func (f ListenerFunc) Handle(ctx context.Context, event Envelope) error {
	return f(ctx, event)
}

// registration is one listener slot in an event's ordered list.
type registration struct {
	id       string
	slug     string
	tenant   string
	priority int
	seq      uint64
	listener Listener
}

// Dispatcher is a priority-ordered synchronous pub/sub bus keyed by event
// name. Listener lists are process-lifetime state, rebuilt at bootstrap;
// nothing here is persisted.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[string][]registration
	seq       uint64
}

// NewDispatcher returns an empty event bus.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{listeners: make(map[string][]registration)}
}

// Listen registers a listener for the named event, owned by the given
// extension and optionally scoped to one tenant (empty tenant means global).
// Higher priority runs first; equal priorities keep registration order.
// Returns the registration id.
func (d *Dispatcher) Listen(event string, listener Listener, slug, tenant string, priority int) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	reg := registration{
		id:       uuid.NewString(),
		slug:     slug,
		tenant:   tenant,
		priority: priority,
		seq:      d.seq,
		listener: listener,
	}

	list := append(d.listeners[event], reg)
	// Keep the list sorted eagerly so dispatch never sorts on the hot path.
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority > list[j].priority
		}
		return list[i].seq < list[j].seq
	})
	d.listeners[event] = list

	return reg.id
}

// Dispatch invokes every listener for the event synchronously, in priority
// order, with an immutable envelope. The first listener error stops the
// chain and propagates to the caller. Re-entrant dispatch from inside a
// listener is legal: each dispatch iterates its own copy of the
// already-sorted list.
func (d *Dispatcher) Dispatch(ctx context.Context, event string, payload any, metadata map[string]any) error {
	d.mu.RLock()
	list := make([]registration, len(d.listeners[event]))
	copy(list, d.listeners[event])
	d.mu.RUnlock()

	envelope := Envelope{Name: event, Payload: payload, Metadata: metadata}
	for _, reg := range list {
		if err := reg.listener.Handle(ctx, envelope); err != nil {
			return err
		}
	}
	return nil
}

// RemoveListeners drops listeners owned by the extension. With a tenant,
// only that tenant's listeners go; global listeners for the same extension
// stay. With an empty tenant every listener owned by the extension goes.
// Returns how many registrations were removed.
func (d *Dispatcher) RemoveListeners(slug, tenant string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for event, list := range d.listeners {
		kept := list[:0]
		for _, reg := range list {
			if reg.slug == slug && (tenant == "" || reg.tenant == tenant) {
				removed++
				continue
			}
			kept = append(kept, reg)
		}
		if len(kept) == 0 {
			delete(d.listeners, event)
			continue
		}
		d.listeners[event] = kept
	}
	return removed
}

// ListenerCount reports how many listeners are registered for an event.
func (d *Dispatcher) ListenerCount(event string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[event])
}
