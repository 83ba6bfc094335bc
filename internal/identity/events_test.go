package identity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestBrokerDeliversInOrder(t *testing.T) {
	b := NewBroker()

	var seen []EventType
	b.Subscribe(func(ev Event) {
		seen = append(seen, ev.Type)
	})

	b.Emit(Event{Type: EventInitialSession})
	b.Emit(Event{Type: EventSignedIn})
	b.Emit(Event{Type: EventTokenRefreshed})
	b.Emit(Event{Type: EventSignedOut})

	assert.Equal(t, []EventType{
		EventInitialSession, EventSignedIn, EventTokenRefreshed, EventSignedOut,
	}, seen)
}

func TestBrokerFansOut(t *testing.T) {
	b := NewBroker()

	var a, c int
	b.Subscribe(func(Event) { a++ })
	b.Subscribe(func(Event) { c++ })

	b.Emit(Event{Type: EventSignedIn})

	assert.Equal(t, 1, a)
	assert.Equal(t, 1, c)
}

func TestBrokerUnsubscribe(t *testing.T) {
	b := NewBroker()

	var calls int
	unsub := b.Subscribe(func(Event) { calls++ })

	b.Emit(Event{Type: EventSignedIn})
	unsub()
	b.Emit(Event{Type: EventSignedOut})

	assert.Equal(t, 1, calls)

	// Unsubscribe is idempotent and must not disturb other subscribers.
	var other int
	b.Subscribe(func(Event) { other++ })
	unsub()
	b.Emit(Event{Type: EventSignedIn})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, other)
}

func TestSessionSubjectID(t *testing.T) {
	var nilSession *Session
	assert.Equal(t, uuid.Nil, nilSession.SubjectID())
	assert.Equal(t, uuid.Nil, (&Session{}).SubjectID())
}
