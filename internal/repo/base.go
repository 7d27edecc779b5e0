// Package repo holds the pieces shared by the gorm-backed repositories.
package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base is embedded by repositories that bind every query to the caller's
// context and can be re-pointed at a transaction.
type Base struct {
	db *gorm.DB
}

func NewBase(conn *gorm.DB) Base {
	return Base{db: conn}
}

// DB returns the connection bound to ctx. A nil ctx yields the raw connection.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// WithTx returns a copy scoped to tx. A nil tx leaves the base unchanged.
func (b Base) WithTx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// First loads the first T matching the condition. It returns
// gorm.ErrRecordNotFound when nothing matches.
func First[T any](ctx context.Context, b Base, query string, args ...any) (*T, error) {
	var row T
	if err := b.DB(ctx).Where(query, args...).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// SetColumn writes one column of the row with the given id without running
// hooks or touching updated_at. A missing row is not an error.
func SetColumn[T any](ctx context.Context, b Base, id any, column string, value any) error {
	return b.DB(ctx).Model(new(T)).Where("id = ?", id).UpdateColumn(column, value).Error
}
