package promotions

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Repository provides persistence helpers for promotions.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a promotions repository to the shared connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the caller's transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindActiveByCode loads an active promotion by its normalized code.
func (r *Repository) FindActiveByCode(ctx context.Context, code string) (*models.Promotion, error) {
	var promo models.Promotion
	err := r.db.WithContext(ctx).
		Where("code = ? AND is_active = ?", code, true).
		First(&promo).Error
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Promotion, error) {
	var promo models.Promotion
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&promo).Error; err != nil {
		return nil, err
	}
	return &promo, nil
}

// CodeExists reports whether another promotion already uses code.
func (r *Repository) CodeExists(ctx context.Context, code string, excludeID *uuid.UUID) (bool, error) {
	query := r.db.WithContext(ctx).Model(&models.Promotion{}).Where("code = ?", code)
	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) Create(ctx context.Context, promo *models.Promotion) error {
	return r.db.WithContext(ctx).Create(promo).Error
}

func (r *Repository) Save(ctx context.Context, promo *models.Promotion) error {
	return r.db.WithContext(ctx).Save(promo).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Promotion{})
	return res.RowsAffected, res.Error
}

// ListRedeemable returns active promotions whose window contains now.
func (r *Repository) ListRedeemable(ctx context.Context, now time.Time) ([]models.Promotion, error) {
	var rows []models.Promotion
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND start_date <= ? AND end_date >= ?", true, now, now).
		Order("end_date ASC").
		Find(&rows).Error
	return rows, err
}

// ListFilter narrows the admin promotion listing.
type ListFilter struct {
	Search   string
	IsActive *bool
}

// List returns a cursor page of promotions ordered newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Promotion, string, error) {
	query := r.db.WithContext(ctx).Model(&models.Promotion{})
	if search := strings.ToUpper(strings.TrimSpace(filter.Search)); search != "" {
		query = query.Where("code LIKE ?", "%"+search+"%")
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}

	var rows []models.Promotion
	if err := query.Scopes(pagination.Keyset(params, "")).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	rows, next := pagination.Cut(rows, params, models.Promotion.PageCursor)
	return rows, next, nil
}

// FindExpiredActive returns promotions still flagged active whose end date passed.
func (r *Repository) FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]models.Promotion, error) {
	var rows []models.Promotion
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND end_date < ?", true, now).
		Order("end_date ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Deactivate flips is_active off for the given promotion.
func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Promotion{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false).Error
}
