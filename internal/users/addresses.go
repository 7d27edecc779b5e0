package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// AddressRepository stores address book entries. Every lookup is scoped to
// the owning user.
type AddressRepository struct {
	repo.Base
}

func NewAddressRepository(db *gorm.DB) *AddressRepository {
	return &AddressRepository{Base: repo.NewBase(db)}
}

func (r *AddressRepository) WithTx(tx *gorm.DB) *AddressRepository {
	return &AddressRepository{Base: r.Base.WithTx(tx)}
}

// List returns the default entry first, then the rest oldest first.
func (r *AddressRepository) List(ctx context.Context, userID uuid.UUID) ([]models.Address, error) {
	var rows []models.Address
	err := r.DB(ctx).
		Where("user_id = ?", userID).
		Order("is_default DESC").
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *AddressRepository) Find(ctx context.Context, userID, id uuid.UUID) (*models.Address, error) {
	return repo.First[models.Address](ctx, r.Base, "id = ? AND user_id = ?", id, userID)
}

func (r *AddressRepository) Count(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.DB(ctx).Model(&models.Address{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

func (r *AddressRepository) Create(ctx context.Context, addr *models.Address) error {
	return r.DB(ctx).Create(addr).Error
}

func (r *AddressRepository) Save(ctx context.Context, addr *models.Address) error {
	return r.DB(ctx).Save(addr).Error
}

func (r *AddressRepository) Delete(ctx context.Context, userID, id uuid.UUID) (bool, error) {
	res := r.DB(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Address{})
	return res.RowsAffected > 0, res.Error
}

// ClearDefault unsets the current default so another entry can take it.
func (r *AddressRepository) ClearDefault(ctx context.Context, userID uuid.UUID) error {
	return r.DB(ctx).Model(&models.Address{}).
		Where("user_id = ? AND is_default = ?", userID, true).
		UpdateColumn("is_default", false).Error
}

// PromoteOldest makes the oldest remaining entry the default. It is a no-op
// when the book is empty.
func (r *AddressRepository) PromoteOldest(ctx context.Context, userID uuid.UUID) error {
	var first models.Address
	err := r.DB(ctx).Where("user_id = ?", userID).Order("created_at ASC").Order("id ASC").First(&first).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return repo.SetColumn[models.Address](ctx, r.Base, first.ID, "is_default", true)
}
