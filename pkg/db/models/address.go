package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Address is an entry in a user's address book. At most one per user is the default.
type Address struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	Label     *string   `gorm:"column:label"`
	FullName  string    `gorm:"column:full_name;not null"`
	Phone     string    `gorm:"column:phone;not null"`
	Province  string    `gorm:"column:province;not null"`
	District  string    `gorm:"column:district;not null"`
	Ward      string    `gorm:"column:ward;not null"`
	Street    string    `gorm:"column:street;not null"`
	IsDefault bool      `gorm:"column:is_default;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *Address) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

func (a Address) Shipping() types.ShippingAddress {
	return types.ShippingAddress{
		FullName: a.FullName,
		Phone:    a.Phone,
		Province: a.Province,
		District: a.District,
		Ward:     a.Ward,
		Street:   a.Street,
	}
}

// SetShipping copies every field of s onto the address.
func (a *Address) SetShipping(s types.ShippingAddress) {
	a.FullName = s.FullName
	a.Phone = s.Phone
	a.Province = s.Province
	a.District = s.District
	a.Ward = s.Ward
	a.Street = s.Street
}
