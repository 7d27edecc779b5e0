package promotions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// PromotionDTO is the API projection of a promotion.
type PromotionDTO struct {
	ID            uuid.UUID          `json:"id"`
	Code          string             `json:"code"`
	Description   *string            `json:"description,omitempty"`
	DiscountType  enums.DiscountType `json:"discount_type"`
	DiscountValue decimal.Decimal    `json:"discount_value"`
	StartDate     time.Time          `json:"start_date"`
	EndDate       time.Time          `json:"end_date"`
	MinSpend      int64              `json:"min_spend"`
	IsActive      bool               `json:"is_active"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// ToDTO projects a promotion model.
func ToDTO(p models.Promotion) PromotionDTO {
	return PromotionDTO{
		ID:            p.ID,
		Code:          p.Code,
		Description:   p.Description,
		DiscountType:  p.DiscountType,
		DiscountValue: p.DiscountValue,
		StartDate:     p.StartDate,
		EndDate:       p.EndDate,
		MinSpend:      p.MinSpend,
		IsActive:      p.IsActive,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// PromotionPageDTO is a cursor page of promotions.
type PromotionPageDTO struct {
	Items      []PromotionDTO `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// PreviewDTO reports the discount a code would yield for an order amount.
type PreviewDTO struct {
	Code           string             `json:"code"`
	DiscountType   enums.DiscountType `json:"discount_type"`
	DiscountValue  decimal.Decimal    `json:"discount_value"`
	DiscountAmount int64              `json:"discount_amount"`
	FinalAmount    int64              `json:"final_amount"`
	Description    *string            `json:"description,omitempty"`
}

// CreateInput carries an admin's new promotion.
type CreateInput struct {
	Code          string
	Description   *string
	DiscountType  enums.DiscountType
	DiscountValue decimal.Decimal
	StartDate     time.Time
	EndDate       time.Time
	MinSpend      int64
	IsActive      *bool
}

// UpdateInput carries a partial promotion update; nil fields are left unchanged.
type UpdateInput struct {
	Code          *string
	Description   *string
	DiscountType  *enums.DiscountType
	DiscountValue *decimal.Decimal
	StartDate     *time.Time
	EndDate       *time.Time
	MinSpend      *int64
	IsActive      *bool
}
