package cart

import (
	"time"

	"github.com/google/uuid"

	product "github.com/angelmondragon/storefront-backend/internal/products"
)

// CartView is the reconciled cart returned to clients.
type CartView struct {
	ID             uuid.UUID      `json:"id"`
	Items          []CartItemView `json:"items"`
	ItemCount      int            `json:"item_count"`
	Subtotal       int64          `json:"subtotal"`
	DiscountCode   *string        `json:"discount_code"`
	DiscountAmount int64          `json:"discount_amount"`
	Total          int64          `json:"total"`
	Adjusted       bool           `json:"adjusted"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// CartItemView is one cart line with the product it references.
type CartItemView struct {
	ProductID uuid.UUID              `json:"product_id"`
	Product   product.ProductSummary `json:"product"`
	Quantity  int                    `json:"quantity"`
	UnitPrice int64                  `json:"unit_price"`
	LineTotal int64                  `json:"line_total"`
}
