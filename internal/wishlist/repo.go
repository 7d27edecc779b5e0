package wishlist

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

const uniqueConstraint = "wishlist_items_user_product_key"

type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Add inserts a wishlist row. A second like of the same product fails with
// a unique violation.
func (r *Repository) Add(ctx context.Context, userID, productID uuid.UUID) error {
	return r.DB(ctx).Create(&models.WishlistItem{UserID: userID, ProductID: productID}).Error
}

func (r *Repository) Remove(ctx context.Context, userID, productID uuid.UUID) error {
	return r.DB(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.WishlistItem{}).
		Error
}

// Page lists the user's likes of still active products, newest first.
func (r *Repository) Page(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.WishlistItem, string, error) {
	var rows []models.WishlistItem
	err := r.DB(ctx).
		Table("wishlist_items AS wi").
		Select("wi.*").
		Joins("JOIN products p ON p.id = wi.product_id").
		Scopes(models.ActiveOn("p"), pagination.Keyset(params, "wi")).
		Where("wi.user_id = ?", userID).
		Find(&rows).Error
	if err != nil {
		return nil, "", err
	}
	rows, next := pagination.Cut(rows, params, models.WishlistItem.PageCursor)
	return rows, next, nil
}
