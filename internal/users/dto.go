package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type UserPageDTO struct {
	Items      []UserDTO `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// AddressDTO is an address book entry. The embedded shipping fields are what
// checkout copies onto an order.
type AddressDTO struct {
	ID    uuid.UUID `json:"id"`
	Label *string   `json:"label,omitempty"`
	types.ShippingAddress
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func addressDTO(a models.Address) AddressDTO {
	return AddressDTO{
		ID:              a.ID,
		Label:           a.Label,
		ShippingAddress: a.Shipping(),
		IsDefault:       a.IsDefault,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

// ProfileUpdate changes the caller's own account. Nil fields are left alone;
// an empty phone clears it.
type ProfileUpdate struct {
	FullName *string
	Phone    *string
}

// AddressInput is a new entry. The first entry of a book becomes the default
// regardless of IsDefault.
type AddressInput struct {
	Label    *string
	Shipping types.ShippingAddress
	Default  bool
}

// AddressPatch edits an entry field by field. Blank values are rejected for
// the shipping fields since every one of them is required.
type AddressPatch struct {
	Label    *string
	FullName *string
	Phone    *string
	Province *string
	District *string
	Ward     *string
	Street   *string
	Default  *bool
}

// CreateInput is an account opened by an admin.
type CreateInput struct {
	Email    string
	Password string
	FullName string
	Phone    *string
	Role     enums.UserRole
}

// AdminUpdate edits another account. Restoring a deleted account goes through
// Lifecycle.
type AdminUpdate struct {
	FullName  *string
	Phone     *string
	Role      *enums.UserRole
	Password  *string
	Lifecycle *enums.Lifecycle
}
