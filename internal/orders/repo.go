package orders

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// AdminFilter narrows the admin order listing.
type AdminFilter struct {
	Status        *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	PaymentMethod *enums.PaymentMethod
	Search        string
	From          *time.Time
	To            *time.Time
}

// StatsScope bounds an aggregate query. A nil UserID covers every order.
type StatsScope struct {
	UserID *uuid.UUID
	From   *time.Time
	To     *time.Time
}

// StatusBucket is the order count and amount for one status.
type StatusBucket struct {
	Status enums.OrderStatus `json:"status"`
	Count  int64             `json:"count"`
	Total  int64             `json:"total"`
}

// BestSeller aggregates delivered quantities for one product.
type BestSeller struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	TotalSold int64     `json:"total_sold"`
	Revenue   int64     `json:"revenue"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

func (r *repository) CreateLineItems(ctx context.Context, items []models.OrderLineItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateIfStatus applies updates only while the order still has the expected
// status, so two racing transitions cannot both succeed.
func (r *repository) UpdateIfStatus(ctx context.Context, id uuid.UUID, expected enums.OrderStatus, updates map[string]any) (bool, error) {
	updates["updated_at"] = r.db.NowFunc()
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Order{}).Error
}

func (r *repository) ListForUser(ctx context.Context, userID uuid.UUID, status *enums.OrderStatus, params pagination.Params) ([]models.Order, string, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	return r.page(query, params)
}

func (r *repository) ListAll(ctx context.Context, filter AdminFilter, params pagination.Params) ([]models.Order, string, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.PaymentStatus != nil {
		query = query.Where("payment_status = ?", *filter.PaymentStatus)
	}
	if filter.PaymentMethod != nil {
		query = query.Where("payment_method = ?", *filter.PaymentMethod)
	}
	if search := strings.ToUpper(strings.TrimSpace(filter.Search)); search != "" {
		query = query.Where("code LIKE ?", "%"+search+"%")
	}
	query = withRange(query, filter.From, filter.To)
	return r.page(query, params)
}

func (r *repository) page(query *gorm.DB, params pagination.Params) ([]models.Order, string, error) {
	var rows []models.Order
	if err := query.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Scopes(pagination.Keyset(params, "")).
		Find(&rows).Error; err != nil {
		return nil, "", err
	}
	rows, next := pagination.Cut(rows, params, models.Order.PageCursor)
	return rows, next, nil
}

func (r *repository) StatusBreakdown(ctx context.Context, scope StatsScope) ([]StatusBucket, error) {
	var rows []StatusBucket
	err := r.scoped(ctx, scope).
		Select("status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS total").
		Group("status").
		Order("status ASC").
		Scan(&rows).Error
	return rows, err
}

// Revenue sums delivered orders whose payment completed.
func (r *repository) Revenue(ctx context.Context, scope StatsScope) (int64, error) {
	var total int64
	err := r.scoped(ctx, scope).
		Where("status = ? AND payment_status = ?", enums.OrderStatusDelivered, enums.PaymentStatusCompleted).
		Select("COALESCE(SUM(total_amount), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repository) BestSellers(ctx context.Context, scope StatsScope, limit int) ([]BestSeller, error) {
	query := r.db.WithContext(ctx).
		Table("order_line_items AS li").
		Joins("JOIN orders o ON o.id = li.order_id").
		Where("o.status = ?", enums.OrderStatusDelivered)
	if scope.UserID != nil {
		query = query.Where("o.user_id = ?", *scope.UserID)
	}
	if scope.From != nil {
		query = query.Where("o.created_at >= ?", scope.From.UTC())
	}
	if scope.To != nil {
		query = query.Where("o.created_at <= ?", scope.To.UTC())
	}

	var rows []BestSeller
	err := query.
		Select("li.product_id AS product_id, MAX(li.name) AS name, SUM(li.quantity) AS total_sold, SUM(li.line_total) AS revenue").
		Group("li.product_id").
		Order("total_sold DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func (r *repository) scoped(ctx context.Context, scope StatsScope) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if scope.UserID != nil {
		query = query.Where("user_id = ?", *scope.UserID)
	}
	return withRange(query, scope.From, scope.To)
}

func withRange(query *gorm.DB, from, to *time.Time) *gorm.DB {
	if from != nil {
		query = query.Where("created_at >= ?", from.UTC())
	}
	if to != nil {
		query = query.Where("created_at <= ?", to.UTC())
	}
	return query
}
