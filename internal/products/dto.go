package product

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// ProductDTO represents the catalog payload returned to clients.
type ProductDTO struct {
	ID             uuid.UUID `json:"id"`
	SKU            string    `json:"sku"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	Description    string    `json:"description"`
	Price          int64     `json:"price"`
	SalePrice      *int64    `json:"sale_price,omitempty"`
	EffectivePrice int64     `json:"effective_price"`
	Stock          int       `json:"stock"`
	SoldCount      int       `json:"sold_count"`
	InStock        bool      `json:"in_stock"`
	Images         []string  `json:"images"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ProductSummary is the compact projection embedded in carts and wishlists.
type ProductSummary struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	Image          *string   `json:"image,omitempty"`
	Price          int64     `json:"price"`
	SalePrice      *int64    `json:"sale_price,omitempty"`
	EffectivePrice int64     `json:"effective_price"`
	Stock          int       `json:"stock"`
}

// ProductPageDTO is a cursor page of products.
type ProductPageDTO struct {
	Items      []ProductDTO `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// CreateProductInput carries an admin's new catalog entry.
type CreateProductInput struct {
	SKU         string
	Name        string
	Slug        string
	Description string
	Price       int64
	SalePrice   *int64
	Stock       int
	Images      []string
}

// UpdateProductInput carries a partial update; nil fields stay unchanged.
type UpdateProductInput struct {
	SKU         *string
	Name        *string
	Slug        *string
	Description *string
	Price       *int64
	SalePrice   *int64
	ClearSale   bool
	Stock       *int
	Images      *[]string
}

// NewProductDTO projects a product model.
func NewProductDTO(p models.Product) ProductDTO {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return ProductDTO{
		ID:             p.ID,
		SKU:            p.SKU,
		Name:           p.Name,
		Slug:           p.Slug,
		Description:    p.Description,
		Price:          p.Price,
		SalePrice:      p.SalePrice,
		EffectivePrice: p.EffectivePrice(),
		Stock:          p.Stock,
		SoldCount:      p.SoldCount,
		InStock:        p.Stock > 0,
		Images:         images,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

// NewProductSummary projects a product into its compact form.
func NewProductSummary(p models.Product) ProductSummary {
	return ProductSummary{
		ID:             p.ID,
		Name:           p.Name,
		Slug:           p.Slug,
		Image:          p.PrimaryImage(),
		Price:          p.Price,
		SalePrice:      p.SalePrice,
		EffectivePrice: p.EffectivePrice(),
		Stock:          p.Stock,
	}
}
