package realtime

import (
	"context"
	"encoding/json"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/trailmarks/gamification-backend/pkg/config"
	"github.com/trailmarks/gamification-backend/pkg/enums"
	"github.com/trailmarks/gamification-backend/pkg/errors"
	"github.com/trailmarks/gamification-backend/pkg/logger"
	"github.com/trailmarks/gamification-backend/pkg/outbox"
	"github.com/trailmarks/gamification-backend/pkg/outbox/payloads"
	"github.com/trailmarks/gamification-backend/pkg/outbox/registry"
)

// ConsumerName scopes idempotency keys for the realtime worker.
const ConsumerName = "realtime-worker"

// AttrEventType is the Pub/Sub attribute carrying the outbox event type.
const AttrEventType = "event_type"

// AttrVersion is the Pub/Sub attribute carrying the payload schema version.
const AttrVersion = "version"

// Deduper is the slice of the idempotency manager the consumer uses.
type Deduper interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
}

// Subscriber matches the Pub/Sub v2 Subscriber receive contract.
type Subscriber interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer decodes outbox envelopes off Pub/Sub, dedupes them, classifies
// them into realtime events, and fans them out through the registry.
type Consumer struct {
	decoders *registry.DecoderRegistry
	deduper  Deduper
	registry *Registry
	logg     *logger.Logger

	points  *Connection
	ranking *Connection
}

// NewConsumer wires the realtime consumer over the points and ranking
// subscriptions.
func NewConsumer(cfg config.RealtimeConfig, points, ranking Subscriber, deduper Deduper, reg *Registry, logg *logger.Logger) (*Consumer, error) {
	if points == nil || ranking == nil {
		return nil, errors.New(errors.CodeInternal, "both subscriptions are required")
	}
	if deduper == nil {
		return nil, errors.New(errors.CodeInternal, "idempotency manager required")
	}
	if reg == nil {
		return nil, errors.New(errors.CodeInternal, "listener registry required")
	}

	c := &Consumer{
		decoders: newDecoders(),
		deduper:  deduper,
		registry: reg,
		logg:     logg,
	}

	var err error
	c.points, err = NewConnection("points", cfg, func(ctx context.Context) error {
		return points.Receive(ctx, c.receiveMessage)
	}, logg)
	if err != nil {
		return nil, err
	}
	c.ranking, err = NewConnection("ranking", cfg, func(ctx context.Context) error {
		return ranking.Receive(ctx, c.receiveMessage)
	}, logg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func newDecoders() *registry.DecoderRegistry {
	decoders := registry.NewDecoderRegistry()
	decoders.Register(enums.EventPointsAppended, 1, func(payload json.RawMessage) (interface{}, error) {
		var decoded payloads.PointsAppendedEvent
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	})
	decoders.Register(enums.EventRankingUpdated, 1, func(payload json.RawMessage) (interface{}, error) {
		var decoded payloads.RankingUpdatedEvent
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	})
	return decoders
}

// Run drives both subscription connections until the context is cancelled or
// either connection exhausts its reconnect budget.
func (c *Consumer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 2)
	go func() { done <- c.points.Run(ctx) }()
	go func() { done <- c.ranking.Run(ctx) }()

	err := <-done
	cancel()
	<-done
	return err
}

// PointsState reports the points connection state.
func (c *Consumer) PointsState() State { return c.points.State() }

// RankingState reports the ranking connection state.
func (c *Consumer) RankingState() State { return c.ranking.State() }

// Reset clears Failed connections so Run can be called again.
func (c *Consumer) Reset() {
	_ = c.points.Reset()
	_ = c.ranking.Reset()
}

func (c *Consumer) receiveMessage(ctx context.Context, msg *pubsub.Message) {
	if err := c.handle(ctx, msg.Data, msg.Attributes); err != nil {
		if c.logg != nil {
			c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "realtime message rejected")
		}
		if appErr := errors.As(err); appErr != nil && appErr.Code() == errors.CodeDependency {
			msg.Nack()
			return
		}
	}
	// Malformed messages are acked: redelivery cannot fix them.
	msg.Ack()
}

// handle processes one raw message. Dependency failures are retryable;
// anything else is dropped after logging.
func (c *Consumer) handle(ctx context.Context, data []byte, attrs map[string]string) error {
	eventType, err := enums.ParseOutboxEventType(attrs[AttrEventType])
	if err != nil {
		return errors.Wrap(errors.CodeValidation, err, "unsupported event type attribute")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return errors.Wrap(errors.CodeValidation, err, "decoding envelope")
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return errors.Wrap(errors.CodeValidation, err, "envelope missing event id")
	}

	processed, err := c.deduper.CheckAndMarkProcessed(ctx, ConsumerName, eventID)
	if err != nil {
		return errors.Wrap(errors.CodeDependency, err, "idempotency check")
	}
	if processed {
		return nil
	}

	decoded, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		return errors.Wrap(errors.CodeValidation, err, "decoding payload")
	}

	var events []Event
	switch payload := decoded.(type) {
	case payloads.PointsAppendedEvent:
		events = ClassifyPoints(eventID, envelope.OccurredAt, payload)
	case payloads.RankingUpdatedEvent:
		events = ClassifyRanking(eventID, envelope.OccurredAt, payload)
	default:
		return errors.New(errors.CodeValidation, "no classifier for event type").
			WithDetails(map[string]any{"event_type": string(eventType)})
	}

	for _, event := range events {
		c.registry.Dispatch(event)
	}
	return nil
}
