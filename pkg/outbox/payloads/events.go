package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderCreatedEvent is emitted in the same transaction that places an order.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	Code          string              `json:"code"`
	UserID        uuid.UUID           `json:"user_id"`
	TotalAmount   int64               `json:"total_amount"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	ItemCount     int                 `json:"item_count"`
	DiscountCode  *string             `json:"discount_code,omitempty"`
}

// OrderCancelledEvent carries the cancellation details and the restocked lines.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	Code        string          `json:"code"`
	UserID      uuid.UUID       `json:"user_id"`
	Reason      string          `json:"reason,omitempty"`
	CancelledBy enums.UserRole  `json:"cancelled_by"`
	CancelledAt time.Time       `json:"cancelled_at"`
	Restocked   []RestockedLine `json:"restocked,omitempty"`
}

// RestockedLine records stock returned to a product on cancellation.
type RestockedLine struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// OrderStatusChangedEvent reports an admin driven status transition.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	Code    string            `json:"code"`
	UserID  uuid.UUID         `json:"user_id"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
}

// OrderPaymentUpdatedEvent reports a payment status transition.
type OrderPaymentUpdatedEvent struct {
	OrderID uuid.UUID           `json:"order_id"`
	Code    string              `json:"code"`
	UserID  uuid.UUID           `json:"user_id"`
	From    enums.PaymentStatus `json:"from"`
	To      enums.PaymentStatus `json:"to"`
}

// PromotionExpiredEvent is emitted when the expiry job deactivates a promotion.
type PromotionExpiredEvent struct {
	PromotionID uuid.UUID `json:"promotion_id"`
	Code        string    `json:"code"`
	EndDate     time.Time `json:"end_date"`
}
