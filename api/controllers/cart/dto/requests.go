package cartdto

import "github.com/google/uuid"

// AddItemRequest adds quantity units of a product to the cart.
type AddItemRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// UpdateItemRequest sets the absolute quantity of a cart line.
type UpdateItemRequest struct {
	Quantity int `json:"quantity"`
}

type ApplyDiscountRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}
