package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

var testTopics = Topics{Orders: "orders-topic", Notifications: "notification-topic"}

func envelope(t *testing.T, version int, data any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	out, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Data:       raw,
	})
	require.NoError(t, err)
	return out
}

func TestResolveOrderCreated(t *testing.T) {
	reg, err := NewEventRegistry(testTopics)
	require.NoError(t, err)

	orderID := uuid.New()
	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload: envelope(t, 1, payloads.OrderCreatedEvent{
			OrderID:       orderID,
			Code:          "FSABC12345",
			TotalAmount:   210000,
			PaymentMethod: enums.PaymentMethodCOD,
			ItemCount:     2,
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, "orders-topic", resolved.Descriptor.Topic)
	assert.Equal(t, enums.AggregateOrder, resolved.Descriptor.AggregateType)
	assert.NotEmpty(t, resolved.Envelope.EventID)
	require.IsType(t, &payloads.OrderCreatedEvent{}, resolved.Payload)
	created := resolved.Payload.(*payloads.OrderCreatedEvent)
	assert.Equal(t, orderID, created.OrderID)
	assert.EqualValues(t, 210000, created.TotalAmount)
}

func TestResolveRoutesPromotionsToNotifications(t *testing.T) {
	reg, err := NewEventRegistry(testTopics)
	require.NoError(t, err)

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventPromotionExpired,
		AggregateType: enums.AggregatePromotion,
		AggregateID:   uuid.New(),
		Payload:       envelope(t, 0, payloads.PromotionExpiredEvent{Code: "SAVE10"}),
	})
	require.NoError(t, err)
	assert.Equal(t, "notification-topic", resolved.Descriptor.Topic)
}

func TestResolveRejectsBadRows(t *testing.T) {
	reg, err := NewEventRegistry(testTopics)
	require.NoError(t, err)

	good := payloads.OrderCancelledEvent{OrderID: uuid.New(), Code: "FS1"}
	cases := []struct {
		name  string
		event models.OutboxEvent
		want  string
	}{
		{
			name:  "unknown type",
			event: models.OutboxEvent{EventType: "mystery", AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: envelope(t, 1, good)},
			want:  "unsupported event type",
		},
		{
			name:  "wrong aggregate",
			event: models.OutboxEvent{EventType: enums.EventOrderCancelled, AggregateType: enums.AggregatePromotion, AggregateID: uuid.New(), Payload: envelope(t, 1, good)},
			want:  "belongs to order aggregates",
		},
		{
			name:  "missing aggregate id",
			event: models.OutboxEvent{EventType: enums.EventOrderCancelled, AggregateType: enums.AggregateOrder, Payload: envelope(t, 1, good)},
			want:  "missing aggregate_id",
		},
		{
			name:  "broken envelope",
			event: models.OutboxEvent{EventType: enums.EventOrderCancelled, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{`)},
			want:  "decode envelope",
		},
		{
			name:  "null data",
			event: models.OutboxEvent{EventType: enums.EventOrderCancelled, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: envelope(t, 1, nil)},
			want:  "no data",
		},
		{
			name:  "future version",
			event: models.OutboxEvent{EventType: enums.EventOrderCancelled, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: envelope(t, 7, good)},
			want:  "version 7",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reg.Resolve(tc.event)
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.want)
			var nonRetryable NonRetryableError
			assert.True(t, errors.As(err, &nonRetryable))
		})
	}
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	_, err := NewEventRegistry(Topics{Notifications: "n"})
	assert.ErrorContains(t, err, "orders topic")
	_, err = NewEventRegistry(Topics{Orders: "o"})
	assert.ErrorContains(t, err, "notification topic")
}

func TestCatalogCoversEveryEventType(t *testing.T) {
	for _, eventType := range []enums.OutboxEventType{
		enums.EventOrderCreated,
		enums.EventOrderCancelled,
		enums.EventOrderStatusChanged,
		enums.EventOrderPaymentUpdated,
		enums.EventPromotionExpired,
	} {
		e, ok := catalog[eventType]
		require.True(t, ok, eventType)
		assert.True(t, e.aggregate.IsValid(), eventType)
		_, err := DecodePayload(eventType, 1, json.RawMessage(`{}`))
		assert.NoError(t, err, eventType)
	}
}

func TestDecodePayloadTypeMismatch(t *testing.T) {
	_, err := DecodePayload(enums.EventOrderStatusChanged, 1, json.RawMessage(`{"order_id":42}`))
	assert.ErrorContains(t, err, "decode order_status_changed payload")
}
