package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// OrderDTO is the full order view returned to the owner and to admins.
type OrderDTO struct {
	ID              uuid.UUID             `json:"id"`
	Code            string                `json:"code"`
	UserID          uuid.UUID             `json:"user_id"`
	Items           []OrderLineDTO        `json:"items"`
	ShippingAddress types.ShippingAddress `json:"shipping_address"`
	PaymentMethod   enums.PaymentMethod   `json:"payment_method"`
	PaymentStatus   enums.PaymentStatus   `json:"payment_status"`
	TransactionID   *string               `json:"transaction_id,omitempty"`
	SubTotal        int64                 `json:"sub_total"`
	ShippingFee     int64                 `json:"shipping_fee"`
	DiscountCode    *string               `json:"discount_code,omitempty"`
	DiscountAmount  int64                 `json:"discount_amount"`
	TotalAmount     int64                 `json:"total_amount"`
	Status          enums.OrderStatus     `json:"status"`
	Note            *string               `json:"note,omitempty"`
	CancelReason    *string               `json:"cancel_reason,omitempty"`
	CancelledAt     *time.Time            `json:"cancelled_at,omitempty"`
	DeliveredAt     *time.Time            `json:"delivered_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// OrderLineDTO is one frozen order line.
type OrderLineDTO struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Image     *string   `json:"image,omitempty"`
	Quantity  int       `json:"quantity"`
	UnitPrice int64     `json:"unit_price"`
	LineTotal int64     `json:"line_total"`
}

// TrackingDTO is the public view of an order looked up by code. It omits the
// owner and masks the contact details.
type TrackingDTO struct {
	Code          string              `json:"code"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Items         []OrderLineDTO      `json:"items"`
	TotalAmount   int64               `json:"total_amount"`
	Recipient     string              `json:"recipient"`
	Phone         string              `json:"phone"`
	Province      string              `json:"province"`
	CreatedAt     time.Time           `json:"created_at"`
	DeliveredAt   *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt   *time.Time          `json:"cancelled_at,omitempty"`
}

// OrderPageDTO wraps a cursor page of orders.
type OrderPageDTO struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// UserStatsDTO summarises a user's orders.
type UserStatsDTO struct {
	ByStatus   []StatusBucket `json:"by_status"`
	TotalSpent int64          `json:"total_spent"`
}

// AdminStatsDTO summarises the whole store.
type AdminStatsDTO struct {
	ByStatus     []StatusBucket `json:"by_status"`
	TotalRevenue int64          `json:"total_revenue"`
	BestSellers  []BestSeller   `json:"best_sellers"`
}

// NewOrderDTO maps the order model.
func NewOrderDTO(o models.Order) OrderDTO {
	return OrderDTO{
		ID:              o.ID,
		Code:            o.Code,
		UserID:          o.UserID,
		Items:           newLineDTOs(o.Items),
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		PaymentStatus:   o.PaymentStatus,
		TransactionID:   o.TransactionID,
		SubTotal:        o.SubTotal,
		ShippingFee:     o.ShippingFee,
		DiscountCode:    o.DiscountCode,
		DiscountAmount:  o.DiscountAmount,
		TotalAmount:     o.TotalAmount,
		Status:          o.Status,
		Note:            o.Note,
		CancelReason:    o.CancelReason,
		CancelledAt:     o.CancelledAt,
		DeliveredAt:     o.DeliveredAt,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

// NewTrackingDTO maps the order model to its public tracking view.
func NewTrackingDTO(o models.Order) TrackingDTO {
	return TrackingDTO{
		Code:          o.Code,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		Items:         newLineDTOs(o.Items),
		TotalAmount:   o.TotalAmount,
		Recipient:     o.ShippingAddress.FullName,
		Phone:         maskPhone(o.ShippingAddress.Phone),
		Province:      o.ShippingAddress.Province,
		CreatedAt:     o.CreatedAt,
		DeliveredAt:   o.DeliveredAt,
		CancelledAt:   o.CancelledAt,
	}
}

func newLineDTOs(items []models.OrderLineItem) []OrderLineDTO {
	out := make([]OrderLineDTO, 0, len(items))
	for _, item := range items {
		out = append(out, OrderLineDTO{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
		})
	}
	return out
}

// maskPhone keeps the last three digits.
func maskPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if len(phone) <= 3 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-3) + phone[len(phone)-3:]
}
