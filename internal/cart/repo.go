package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository exposes persistence operations for user carts.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByUserID loads the user's cart with its lines in position order.
func (r *Repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC").Order("created_at ASC")
		}).
		Where("user_id = ?", userID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// GetOrCreate returns the user's cart, inserting an empty one on first access.
// A concurrent first access loses the insert race silently and reads the winner's row.
func (r *Repository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart, err := r.FindByUserID(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	fresh := &models.Cart{UserID: userID}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(fresh).Error; err != nil {
		return nil, err
	}
	return r.FindByUserID(ctx, userID)
}

// ReplaceItems makes the persisted lines equal to items. Lines for products no
// longer in items are deleted and the rest are upserted on (cart_id,
// product_id), so rows another transaction already wrote are updated in place.
func (r *Repository) ReplaceItems(ctx context.Context, cartID uuid.UUID, items []models.CartItem) error {
	keep := make([]uuid.UUID, 0, len(items))
	for i := range items {
		items[i].CartID = cartID
		keep = append(keep, items[i].ProductID)
	}

	stale := r.db.WithContext(ctx).Where("cart_id = ?", cartID)
	if len(keep) > 0 {
		stale = stale.Where("product_id NOT IN ?", keep)
	}
	if err := stale.Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cart_id"}, {Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity", "unit_price", "position", "updated_at"}),
		}).
		Create(&items).Error
}

// SaveTotals writes the derived money fields and the attached discount and
// stamps cart.UpdatedAt with the persisted time.
func (r *Repository) SaveTotals(ctx context.Context, cart *models.Cart) error {
	cart.UpdatedAt = r.db.NowFunc()
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cart.ID).
		Updates(map[string]any{
			"subtotal":        cart.Subtotal,
			"discount_code":   cart.DiscountCode,
			"discount_amount": cart.DiscountAmount,
			"total":           cart.Total,
			"updated_at":      cart.UpdatedAt,
		}).Error
}

// Empty removes every line and resets the totals and discount.
func (r *Repository) Empty(ctx context.Context, cartID uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	return r.SaveTotals(ctx, &models.Cart{ID: cartID})
}
