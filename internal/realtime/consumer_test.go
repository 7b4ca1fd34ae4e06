package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/trailmarks/gamification-backend/pkg/config"
	"github.com/trailmarks/gamification-backend/pkg/outbox"
	"github.com/trailmarks/gamification-backend/pkg/outbox/payloads"
)

type fakeDeduper struct {
	seen map[uuid.UUID]bool
}

func (f *fakeDeduper) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	if f.seen == nil {
		f.seen = map[uuid.UUID]bool{}
	}
	if f.seen[eventID] {
		return true, nil
	}
	f.seen[eventID] = true
	return false, nil
}

type stubSubscriber struct{}

func (stubSubscriber) Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error {
	<-ctx.Done()
	return nil
}

func newTestConsumer(t *testing.T) (*Consumer, *Registry) {
	t.Helper()
	reg := NewRegistry(8, nil)
	consumer, err := NewConsumer(config.RealtimeConfig{
		BackoffBase: time.Millisecond,
		BackoffCap:  time.Millisecond,
		MaxAttempts: 1,
	}, stubSubscriber{}, stubSubscriber{}, &fakeDeduper{}, reg, nil)
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	return consumer, reg
}

func envelopeBytes(t *testing.T, eventID uuid.UUID, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	}
	out, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return out
}

func TestHandleDispatchesPointsEvent(t *testing.T) {
	consumer, reg := newTestConsumer(t)
	userID := uuid.New()
	listener := reg.Subscribe(&userID)

	data := envelopeBytes(t, uuid.New(), payloads.PointsAppendedEvent{
		UserID:      userID,
		FinalPoints: 10,
		TotalPoints: 10,
	})
	err := consumer.handle(context.Background(), data, map[string]string{
		AttrEventType: "points_appended",
		AttrVersion:   "1",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	select {
	case got := <-listener.Events():
		if got.Type != EventPointsAdded {
			t.Fatalf("event type = %s", got.Type)
		}
	default:
		t.Fatal("listener did not receive the classified event")
	}
}

func TestHandleDedupesByEventID(t *testing.T) {
	consumer, reg := newTestConsumer(t)
	userID := uuid.New()
	listener := reg.Subscribe(&userID)

	eventID := uuid.New()
	data := envelopeBytes(t, eventID, payloads.PointsAppendedEvent{
		UserID:      userID,
		FinalPoints: 10,
	})
	attrs := map[string]string{AttrEventType: "points_appended"}

	for i := 0; i < 2; i++ {
		if err := consumer.handle(context.Background(), data, attrs); err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
	}

	received := 0
	for {
		select {
		case <-listener.Events():
			received++
			continue
		default:
		}
		break
	}
	if received != 1 {
		t.Fatalf("delivered %d times, want exactly once", received)
	}
}

func TestHandleRejectsMalformedInput(t *testing.T) {
	consumer, _ := newTestConsumer(t)
	ctx := context.Background()

	if err := consumer.handle(ctx, []byte("{}"), map[string]string{AttrEventType: "bogus"}); err == nil {
		t.Fatal("expected error for unknown event type attribute")
	}
	if err := consumer.handle(ctx, []byte("not json"), map[string]string{AttrEventType: "points_appended"}); err == nil {
		t.Fatal("expected error for malformed envelope")
	}
	if err := consumer.handle(ctx, []byte(`{"version":1,"eventId":""}`), map[string]string{AttrEventType: "points_appended"}); err == nil {
		t.Fatal("expected error for missing event id")
	}
}

func TestConsumerStatesStartDisconnected(t *testing.T) {
	consumer, _ := newTestConsumer(t)
	if consumer.PointsState() != StateDisconnected || consumer.RankingState() != StateDisconnected {
		t.Fatalf("states = %s/%s", consumer.PointsState(), consumer.RankingState())
	}
}
