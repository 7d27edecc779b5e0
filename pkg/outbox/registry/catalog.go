package registry

import (
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

type route int

const (
	routeOrders route = iota
	routeNotifications
)

type entry struct {
	aggregate enums.OutboxAggregateType
	route     route
	versions  map[int]func(json.RawMessage) (any, error)
}

var catalog = map[enums.OutboxEventType]entry{
	enums.EventOrderCreated: {
		aggregate: enums.AggregateOrder,
		route:     routeOrders,
		versions:  v1(payload[payloads.OrderCreatedEvent]),
	},
	enums.EventOrderCancelled: {
		aggregate: enums.AggregateOrder,
		route:     routeOrders,
		versions:  v1(payload[payloads.OrderCancelledEvent]),
	},
	enums.EventOrderStatusChanged: {
		aggregate: enums.AggregateOrder,
		route:     routeOrders,
		versions:  v1(payload[payloads.OrderStatusChangedEvent]),
	},
	enums.EventOrderPaymentUpdated: {
		aggregate: enums.AggregateOrder,
		route:     routeOrders,
		versions:  v1(payload[payloads.OrderPaymentUpdatedEvent]),
	},
	enums.EventPromotionExpired: {
		aggregate: enums.AggregatePromotion,
		route:     routeNotifications,
		versions:  v1(payload[payloads.PromotionExpiredEvent]),
	},
}

func v1(decode func(json.RawMessage) (any, error)) map[int]func(json.RawMessage) (any, error) {
	return map[int]func(json.RawMessage) (any, error){outbox.CurrentVersion: decode}
}

func payload[T any](data json.RawMessage) (any, error) {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodePayload turns envelope data into the typed payload for eventType.
// The result is a pointer to one of the payloads structs. Version 0 is read
// as the current version.
func DecodePayload(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	e, ok := catalog[eventType]
	if !ok {
		return nil, fmt.Errorf("unsupported event type %s", eventType)
	}
	if version == 0 {
		version = outbox.CurrentVersion
	}
	decode, ok := e.versions[version]
	if !ok {
		return nil, fmt.Errorf("unsupported %s version %d", eventType, version)
	}
	out, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	return out, nil
}
