package models

import (
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Active limits a query to rows whose lifecycle tag is active. Every read path
// over users and products goes through it.
func Active(db *gorm.DB) *gorm.DB {
	return db.Where("lifecycle = ?", enums.LifecycleActive)
}

// ActiveOn is Active for queries that join other tables and need a qualified column.
func ActiveOn(table string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(table+".lifecycle = ?", enums.LifecycleActive)
	}
}

// PageCursor methods give pagination.Cut the keyset of each listable row.

func (o Order) PageCursor() pagination.Cursor {
	return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
}

func (p Product) PageCursor() pagination.Cursor {
	return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
}

func (p Promotion) PageCursor() pagination.Cursor {
	return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
}

func (w WishlistItem) PageCursor() pagination.Cursor {
	return pagination.Cursor{CreatedAt: w.CreatedAt, ID: w.ID}
}

func (u User) PageCursor() pagination.Cursor {
	return pagination.Cursor{CreatedAt: u.CreatedAt, ID: u.ID}
}

func (n Notification) PageCursor() pagination.Cursor {
	return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
}
