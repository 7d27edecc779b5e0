package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Product is the shared catalog entry referenced by carts and orders.
// Stock and SoldCount are only ever changed through conditional updates.
type Product struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SKU         string          `gorm:"column:sku;not null;uniqueIndex"`
	Name        string          `gorm:"column:name;not null"`
	Slug        string          `gorm:"column:slug;not null;uniqueIndex"`
	Description string          `gorm:"column:description;not null;default:''"`
	Price       int64           `gorm:"column:price;not null"`
	SalePrice   *int64          `gorm:"column:sale_price"`
	Stock       int             `gorm:"column:stock;not null;default:0"`
	SoldCount   int             `gorm:"column:sold_count;not null;default:0"`
	Images      []string        `gorm:"column:images;type:jsonb;serializer:json"`
	Lifecycle   enums.Lifecycle `gorm:"column:lifecycle;type:text;not null;default:'active'"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	if p.Lifecycle == "" {
		p.Lifecycle = enums.LifecycleActive
	}
	return nil
}

// EffectivePrice is the sale price when present, otherwise the base price.
func (p Product) EffectivePrice() int64 {
	if p.SalePrice != nil {
		return *p.SalePrice
	}
	return p.Price
}

// PrimaryImage returns the first image URL, if any.
func (p Product) PrimaryImage() *string {
	if len(p.Images) == 0 {
		return nil
	}
	img := p.Images[0]
	return &img
}

// IsActive reports whether the product can be sold.
func (p Product) IsActive() bool {
	return p.Lifecycle == enums.LifecycleActive
}
