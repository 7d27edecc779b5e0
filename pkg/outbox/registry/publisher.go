package registry

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

// EventDescriptor says where one event type is published.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is an outbox row that passed validation.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// Topics names the broker destinations events are routed to.
type Topics struct {
	Orders        string
	Notifications string
}

func (t Topics) name(r route) string {
	if r == routeNotifications {
		return t.Notifications
	}
	return t.Orders
}

// EventRegistry validates outbox rows before the publisher sends them.
type EventRegistry struct {
	topics Topics
}

// NonRetryableError marks a row that will never publish no matter how often it is retried.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func NewEventRegistry(topics Topics) (*EventRegistry, error) {
	switch {
	case topics.Orders == "":
		return nil, errors.New("orders topic is required")
	case topics.Notifications == "":
		return nil, errors.New("notification topic is required")
	}
	return &EventRegistry{topics: topics}, nil
}

// Resolve checks the row against the catalog and decodes its payload.
// Every failure is a NonRetryableError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	e, ok := catalog[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if e.aggregate != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("%s belongs to %s aggregates, row has %s", event.EventType, e.aggregate, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	env, _, err := outbox.ParseEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	decoded, err := DecodePayload(event.EventType, env.Version, env.Data)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}

	return &ResolvedEvent{
		Descriptor: EventDescriptor{
			EventType:     event.EventType,
			AggregateType: e.aggregate,
			Topic:         r.topics.name(e.route),
		},
		Envelope: env,
		Payload:  decoded,
	}, nil
}
