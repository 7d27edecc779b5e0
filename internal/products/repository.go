package product

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Repository wires together all product-related persistence helpers.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindByID loads an active product.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Scopes(models.Active).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs loads the active products among ids keyed by id. Missing or deleted
// products are simply absent from the map.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Scopes(models.Active).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// DecrementStock atomically takes qty units if the product is active and has
// enough stock. It reports false when no row satisfied the guard.
func (r *Repository) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND lifecycle = ? AND stock >= ?", id, enums.LifecycleActive, qty).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock - ?", qty),
			"sold_count": gorm.Expr("sold_count + ?", qty),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RestoreStock returns qty units to a product regardless of its lifecycle and
// lowers sold_count, flooring it at zero. It reports false when the row is gone.
func (r *Repository) RestoreStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock + ?", qty),
			"sold_count": gorm.Expr("CASE WHEN sold_count >= ? THEN sold_count - ? ELSE 0 END", qty, qty),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// Save persists catalog fields. Stock is written here only by admin edits.
func (r *Repository) Save(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Save(product).Error
}

// SoftDelete tags the product deleted so every scoped read path stops seeing it.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Scopes(models.Active).
		Where("id = ?", id).
		Update("lifecycle", enums.LifecycleDeleted)
	return res.RowsAffected, res.Error
}

// Exists reports whether column already holds value on another product.
func (r *Repository) Exists(ctx context.Context, column, value string, excludeID *uuid.UUID) (bool, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{}).Where(column+" = ?", value)
	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListQuery narrows the catalog listing.
type ListQuery struct {
	Search   string
	MinPrice *int64
	MaxPrice *int64
	InStock  bool
}

// List returns a cursor page of active products, newest first.
func (r *Repository) List(ctx context.Context, q ListQuery, params pagination.Params) ([]models.Product, string, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{}).Scopes(models.Active)
	if search := strings.TrimSpace(q.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("(LOWER(name) LIKE ? OR LOWER(sku) LIKE ?)", like, like)
	}
	if q.MinPrice != nil {
		query = query.Where("COALESCE(sale_price, price) >= ?", *q.MinPrice)
	}
	if q.MaxPrice != nil {
		query = query.Where("COALESCE(sale_price, price) <= ?", *q.MaxPrice)
	}
	if q.InStock {
		query = query.Where("stock > 0")
	}

	var rows []models.Product
	if err := query.Scopes(pagination.Keyset(params, "")).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	rows, next := pagination.Cut(rows, params, models.Product.PageCursor)
	return rows, next, nil
}
