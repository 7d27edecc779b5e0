package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Order is immutable after placement except for Status, PaymentStatus and
// the timestamps that record those transitions.
type Order struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code            string                `gorm:"column:code;not null;uniqueIndex"`
	UserID          uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	ShippingAddress types.ShippingAddress `gorm:"column:shipping_address;type:jsonb;serializer:json;not null"`
	PaymentMethod   enums.PaymentMethod   `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus   enums.PaymentStatus   `gorm:"column:payment_status;type:text;not null"`
	TransactionID   *string               `gorm:"column:transaction_id"`
	SubTotal        int64                 `gorm:"column:sub_total;not null"`
	ShippingFee     int64                 `gorm:"column:shipping_fee;not null"`
	DiscountCode    *string               `gorm:"column:discount_code"`
	DiscountAmount  int64                 `gorm:"column:discount_amount;not null;default:0"`
	TotalAmount     int64                 `gorm:"column:total_amount;not null"`
	Status          enums.OrderStatus     `gorm:"column:status;type:text;not null;default:'pending'"`
	Note            *string               `gorm:"column:note"`
	CancelReason    *string               `gorm:"column:cancel_reason"`
	CancelledAt     *time.Time            `gorm:"column:cancelled_at"`
	DeliveredAt     *time.Time            `gorm:"column:delivered_at"`
	Items           []OrderLineItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
