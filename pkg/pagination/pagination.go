// Package pagination implements newest-first keyset paging over
// (created_at, id). Cursors are opaque URL-safe strings.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// Params is a page request as it arrives from a handler.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the sort key of the last row on the previous page.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// Size clamps Limit into [1, MaxLimit], defaulting to DefaultLimit.
func (p Params) Size() int {
	switch {
	case p.Limit <= 0:
		return DefaultLimit
	case p.Limit > MaxLimit:
		return MaxLimit
	default:
		return p.Limit
	}
}

// After decodes the cursor. An empty cursor means the first page and yields nil.
func (p Params) After() (*Cursor, error) {
	if strings.TrimSpace(p.Cursor) == "" {
		return nil, nil
	}
	c, err := decode(p.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return c, nil
}

// Validate rejects a cursor that does not decode.
func (p Params) Validate() error {
	_, err := p.After()
	return err
}

// Keyset is a gorm scope that resumes after the cursor, orders newest first
// and fetches one row beyond the page size. table qualifies the columns when
// the query joins; pass "" otherwise.
func Keyset(p Params, table string) func(*gorm.DB) *gorm.DB {
	createdAt, id := "created_at", "id"
	if table != "" {
		createdAt, id = table+".created_at", table+".id"
	}
	return func(db *gorm.DB) *gorm.DB {
		after, err := p.After()
		if err != nil {
			_ = db.AddError(err)
			return db
		}
		if after != nil {
			db = db.Where(
				fmt.Sprintf("(%[1]s < ?) OR (%[1]s = ? AND %[2]s < ?)", createdAt, id),
				after.CreatedAt, after.CreatedAt, after.ID,
			)
		}
		return db.Order(createdAt + " DESC").Order(id + " DESC").Limit(p.Size() + 1)
	}
}

// Cut trims rows fetched through Keyset back to the page size. The returned
// cursor is empty on the last page.
func Cut[T any](rows []T, p Params, key func(T) Cursor) ([]T, string) {
	size := p.Size()
	if len(rows) <= size {
		return rows, ""
	}
	rows = rows[:size]
	return rows, Encode(key(rows[size-1]))
}

func Encode(c Cursor) string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decode(value string) (*Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, err
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, errors.New("missing separator")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, err
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	return &Cursor{CreatedAt: createdAt, ID: uid}, nil
}
