// Package db owns the GORM connection shared by the services and the
// helpers that classify driver errors.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Client holds the pooled connection.
type Client struct {
	conn *gorm.DB
}

// New opens the configured driver and applies pool limits.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, TestConfig())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	pool, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	limitsFrom(cfg).apply(pool)

	logg.Info(logg.WithField(ctx, "driver", cfg.Driver), "database connection established")
	return &Client{conn: conn}, nil
}

// NewFromGorm wraps an already opened connection.
func NewFromGorm(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

// TestConfig is the gorm configuration New opens with. Harnesses that bring
// their own dialector use it to get identical behaviour.
func TestConfig() *gorm.Config {
	return &gorm.Config{
		Logger: gormlogger.New(
			log.New(io.Discard, "", 0),
			gormlogger.Config{LogLevel: gormlogger.Silent},
		),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	}
}

func dialectorFor(cfg config.DBConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", config.DriverPostgres:
		return postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true}), nil
	case config.DriverSQLite:
		return sqlite.Open(cfg.DSN), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

type poolLimits struct {
	open, idle        int
	lifetime, idleFor time.Duration
}

func limitsFrom(cfg config.DBConfig) poolLimits {
	if cfg.Driver == config.DriverSQLite {
		// sqlite has a single writer; more connections only produce SQLITE_BUSY
		return poolLimits{open: 1}
	}
	return poolLimits{
		open:     cfg.MaxOpenConns,
		idle:     cfg.MaxIdleConns,
		lifetime: cfg.ConnMaxLifetime,
		idleFor:  cfg.ConnMaxIdleTime,
	}
}

// apply leaves database/sql defaults in place for zero values.
func (l poolLimits) apply(pool *sql.DB) {
	if l.open > 0 {
		pool.SetMaxOpenConns(l.open)
	}
	if l.idle > 0 {
		pool.SetMaxIdleConns(l.idle)
	}
	if l.lifetime > 0 {
		pool.SetConnMaxLifetime(l.lifetime)
	}
	if l.idleFor > 0 {
		pool.SetConnMaxIdleTime(l.idleFor)
	}
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func (c *Client) Close() error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// WithTx runs fn in a transaction that commits only when fn returns nil.
// A panic inside fn rolls back and is re-raised.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}
