package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Repository persists inbox rows for shoppers and the shared admin inbox.
type Repository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, inbox Audience, unreadOnly bool, page pagination.Params) ([]models.Notification, string, error)
	// MarkRead reports whether the notification exists in the inbox; marking
	// an already read row is not an error.
	MarkRead(ctx context.Context, inbox Audience, id uuid.UUID, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, inbox Audience, at time.Time) (int64, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Audience selects an inbox: one shopper, or the admin inbox when UserID is nil.
type Audience struct {
	UserID *uuid.UUID
}

func UserAudience(id uuid.UUID) Audience {
	return Audience{UserID: &id}
}

func AdminAudience() Audience {
	return Audience{}
}

func (a Audience) scope(db *gorm.DB) *gorm.DB {
	if a.UserID == nil {
		return db.Where("user_id IS NULL")
	}
	return db.Where("user_id = ?", *a.UserID)
}

type gormRepository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{Base: repo.NewBase(db)}
}

func (r *gormRepository) inbox(ctx context.Context, a Audience) *gorm.DB {
	return r.DB(ctx).Model(&models.Notification{}).Scopes(a.scope)
}

func (r *gormRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.DB(ctx).Create(notification).Error
}

func (r *gormRepository) List(ctx context.Context, inbox Audience, unreadOnly bool, page pagination.Params) ([]models.Notification, string, error) {
	query := r.inbox(ctx, inbox)
	if unreadOnly {
		query = query.Where("read_at IS NULL")
	}
	var rows []models.Notification
	if err := query.Scopes(pagination.Keyset(page, "")).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	rows, next := pagination.Cut(rows, page, models.Notification.PageCursor)
	return rows, next, nil
}

func (r *gormRepository) MarkRead(ctx context.Context, inbox Audience, id uuid.UUID, at time.Time) (bool, error) {
	res := r.inbox(ctx, inbox).Where("id = ? AND read_at IS NULL", id).UpdateColumn("read_at", at)
	if res.Error != nil || res.RowsAffected > 0 {
		return res.RowsAffected > 0, res.Error
	}
	var n int64
	err := r.inbox(ctx, inbox).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

func (r *gormRepository) MarkAllRead(ctx context.Context, inbox Audience, at time.Time) (int64, error) {
	res := r.inbox(ctx, inbox).Where("read_at IS NULL").UpdateColumn("read_at", at)
	return res.RowsAffected, res.Error
}

// DeleteReadBefore purges read notifications across every inbox.
func (r *gormRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.DB(ctx).Where("read_at IS NOT NULL AND read_at < ?", cutoff).Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
