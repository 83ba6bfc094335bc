package identity

import "sync"

// EventType enumerates the auth events the provider emits.
type EventType string

const (
	// EventInitialSession is emitted once when the current session is first
	// established (or found absent) at startup.
	EventInitialSession EventType = "initial_session"
	EventSignedIn       EventType = "signed_in"
	EventSignedOut      EventType = "signed_out"
	EventTokenRefreshed EventType = "token_refreshed"
	EventUserUpdated    EventType = "user_updated"
)

// Event is a single auth-state change. Session is nil for signed_out.
type Event struct {
	Type    EventType
	Session *Session
}

// Handler receives auth events in emission order.
type Handler func(Event)

// Unsubscribe removes a subscription. Safe to call more than once.
type Unsubscribe func()

// Broker fans auth events out to subscribers. Handlers run synchronously in
// Emit so subscribers observe events in the order the provider produced them.
type Broker struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]Handler
}

func NewBroker() *Broker {
	return &Broker{handlers: make(map[int]Handler)}
}

func (b *Broker) Subscribe(h Handler) Unsubscribe {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

func (b *Broker) Emit(ev Event) {
	b.mu.Lock()
	hs := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		hs = append(hs, h)
	}
	b.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}
