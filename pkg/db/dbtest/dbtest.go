// Package dbtest opens isolated in-memory sqlite databases carrying the
// storefront schema, for repository and service tests.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
)

var seq atomic.Int64

// Open returns a client bound to a fresh in-memory database with the schema applied.
// The pool is capped at one connection, so concurrent transactions run one at a time.
func Open(t testing.TB) *db.Client {
	t.Helper()

	dsn := fmt.Sprintf("file:storefront_test_%d?mode=memory&cache=shared&_fk=1", seq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), db.TestConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := ApplySchema(conn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db.NewFromGorm(conn)
}

// ApplySchema creates the sqlite rendition of the goose migrations.
func ApplySchema(conn *gorm.DB) error {
	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		full_name TEXT NOT NULL,
		phone TEXT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		lifecycle TEXT NOT NULL DEFAULT 'active',
		last_login_at DATETIME NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE addresses (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		label TEXT NULL,
		full_name TEXT NOT NULL,
		phone TEXT NOT NULL,
		province TEXT NOT NULL,
		district TEXT NOT NULL,
		ward TEXT NOT NULL,
		street TEXT NOT NULL,
		is_default BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX addresses_user_default_key ON addresses (user_id) WHERE is_default`,
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		sku TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		price INTEGER NOT NULL,
		sale_price INTEGER NULL,
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		sold_count INTEGER NOT NULL DEFAULT 0,
		images TEXT NULL,
		lifecycle TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE promotions (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		description TEXT NULL,
		discount_type TEXT NOT NULL,
		discount_value NUMERIC NOT NULL,
		start_date DATETIME NOT NULL,
		end_date DATETIME NOT NULL,
		min_spend INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE carts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		subtotal INTEGER NOT NULL DEFAULT 0,
		discount_code TEXT NULL,
		discount_amount INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE cart_items (
		id TEXT PRIMARY KEY,
		cart_id TEXT NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price INTEGER NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (cart_id, product_id)
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		shipping_address TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		transaction_id TEXT NULL,
		sub_total INTEGER NOT NULL,
		shipping_fee INTEGER NOT NULL,
		discount_code TEXT NULL,
		discount_amount INTEGER NOT NULL DEFAULT 0,
		total_amount INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		note TEXT NULL,
		cancel_reason TEXT NULL,
		cancelled_at DATETIME NULL,
		delivered_at DATETIME NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE order_line_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL,
		name TEXT NOT NULL,
		image TEXT NULL,
		quantity INTEGER NOT NULL,
		unit_price INTEGER NOT NULL,
		line_total INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE wishlist_items (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		CONSTRAINT wishlist_items_user_product_key UNIQUE (user_id, product_id)
	)`,
	`CREATE TABLE notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		link TEXT NULL,
		event_id TEXT NULL,
		read_at DATETIME NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME NOT NULL,
		published_at DATETIME NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NULL
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json BLOB NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL
	)`,
}
