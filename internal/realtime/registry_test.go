package realtime

import (
	"testing"

	"github.com/google/uuid"
)

func TestRegistryTargetedDispatch(t *testing.T) {
	reg := NewRegistry(4, nil)
	userA := uuid.New()
	userB := uuid.New()

	listenerA := reg.Subscribe(&userA)
	listenerB := reg.Subscribe(&userB)
	global := reg.Subscribe(nil)

	reg.Dispatch(Event{Type: EventPointsAdded, UserID: &userA})

	select {
	case got := <-listenerA.Events():
		if got.Type != EventPointsAdded {
			t.Fatalf("listener A got %s", got.Type)
		}
	default:
		t.Fatal("listener A missed its event")
	}
	select {
	case got := <-listenerB.Events():
		t.Fatalf("listener B should not receive another user's event, got %s", got.Type)
	default:
	}
	select {
	case <-global.Events():
	default:
		t.Fatal("global listener missed the event")
	}
}

func TestRegistryBroadcastReachesGlobalOnly(t *testing.T) {
	reg := NewRegistry(4, nil)
	userA := uuid.New()
	listenerA := reg.Subscribe(&userA)
	global := reg.Subscribe(nil)

	reg.Dispatch(Event{Type: EventNewLeader})

	select {
	case got := <-global.Events():
		if got.Type != EventNewLeader {
			t.Fatalf("global listener got %s", got.Type)
		}
	default:
		t.Fatal("global listener missed the broadcast")
	}
	select {
	case got := <-listenerA.Events():
		t.Fatalf("per-user listener should not receive broadcasts, got %s", got.Type)
	default:
	}
}

func TestRegistryUnsubscribeIsIsolated(t *testing.T) {
	reg := NewRegistry(4, nil)
	userA := uuid.New()
	first := reg.Subscribe(&userA)
	second := reg.Subscribe(&userA)

	reg.Unsubscribe(first)
	// Double unsubscribe is harmless.
	reg.Unsubscribe(first)

	reg.Dispatch(Event{Type: EventPointsAdded, UserID: &userA})

	if _, open := <-first.Events(); open {
		t.Fatal("unsubscribed listener channel should be closed")
	}
	select {
	case <-second.Events():
	default:
		t.Fatal("remaining listener missed the event")
	}
	if reg.ListenerCount() != 1 {
		t.Fatalf("listener count = %d, want 1", reg.ListenerCount())
	}
}

func TestRegistryFullBufferDropsInsteadOfBlocking(t *testing.T) {
	reg := NewRegistry(1, nil)
	userA := uuid.New()
	listener := reg.Subscribe(&userA)

	reg.Dispatch(Event{Type: EventPointsAdded, UserID: &userA})
	// Buffer full: this must return immediately and drop.
	reg.Dispatch(Event{Type: EventPositionChange, UserID: &userA})

	got := <-listener.Events()
	if got.Type != EventPointsAdded {
		t.Fatalf("first buffered event = %s", got.Type)
	}
	select {
	case extra := <-listener.Events():
		t.Fatalf("dropped event was delivered: %s", extra.Type)
	default:
	}
}
