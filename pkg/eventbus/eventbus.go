// Package eventbus defines the broker-neutral surface the outbox publisher and
// the notification worker program against. pkg/pubsub and pkg/kafka implement it.
package eventbus

import (
	"context"
	"errors"
)

// Attribute keys stamped on every published domain event.
const (
	AttrEventID       = "event_id"
	AttrEventType     = "event_type"
	AttrAggregateType = "aggregate_type"
	AttrAggregateID   = "aggregate_id"
	AttrCreatedAt     = "created_at"
)

// ErrTopicNotConfigured is returned when a publish targets an unknown topic.
var ErrTopicNotConfigured = errors.New("topic not configured")

// Message is an outbound event. Key orders messages of one aggregate where the
// broker supports it.
type Message struct {
	Key        string
	Data       []byte
	Attributes map[string]string
}

// Delivery is an inbound event handed to a Handler.
type Delivery struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// EventType returns the event_type attribute.
func (d Delivery) EventType() string {
	if d.Attributes == nil {
		return ""
	}
	return d.Attributes[AttrEventType]
}

// Handler processes one delivery. A nil error acknowledges it; an error asks the
// broker to redeliver.
type Handler func(ctx context.Context, delivery Delivery) error

// Publisher sends messages to named topics.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Ping(ctx context.Context) error
	Close() error
}

// Subscriber delivers messages to a handler until ctx is cancelled.
type Subscriber interface {
	Receive(ctx context.Context, handler Handler) error
}
