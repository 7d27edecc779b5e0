package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := fs.Glob(migrate.Files(), "*_"+suffix+".sql")
	require.NoError(t, err)
	require.Len(t, matches, 1, "migration %s", suffix)

	data, err := fs.ReadFile(migrate.Files(), matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	require.NoError(t, migrate.Validate(migrate.Files()))
}

func TestEmbeddedMatchesDisk(t *testing.T) {
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	embedded, err := fs.Glob(migrate.Files(), "*.sql")
	require.NoError(t, err)
	assert.Len(t, embedded, len(onDisk))
}

func TestProductsMigrationGuardsStock(t *testing.T) {
	content := readMigration(t, "create_products_table")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS products",
		"stock integer NOT NULL DEFAULT 0 CHECK (stock >= 0)",
		"CREATE UNIQUE INDEX IF NOT EXISTS products_sku_key",
		"CREATE UNIQUE INDEX IF NOT EXISTS products_slug_key",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestOrdersMigrationContainsSchemas(t *testing.T) {
	content := readMigration(t, "create_orders_table")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"CREATE TABLE IF NOT EXISTS order_line_items",
		"CREATE UNIQUE INDEX IF NOT EXISTS orders_code_key",
		"'pending', 'processing', 'shipped', 'delivered', 'cancelled'",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestCartsMigrationEnforcesOneCartPerUser(t *testing.T) {
	content := readMigration(t, "create_carts_table")
	assert.Contains(t, content, "CREATE UNIQUE INDEX IF NOT EXISTS carts_user_id_key ON carts (user_id)")
	assert.Contains(t, content, "CREATE UNIQUE INDEX IF NOT EXISTS cart_items_cart_product_key")
	assert.Contains(t, content, "quantity integer NOT NULL CHECK (quantity > 0)")
}

func TestAddressesMigrationKeepsOneDefault(t *testing.T) {
	content := readMigration(t, "create_addresses_table")
	assert.Contains(t, content, "user_id uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE")
	assert.Contains(t, content, "CREATE UNIQUE INDEX IF NOT EXISTS addresses_user_default_key ON addresses (user_id) WHERE is_default")
}

func TestCreateWritesGooseTemplate(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	path, err := migrate.Create(dir, "Add Order Notes!", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20260304050607_add_order_notes.sql"), path)
	require.NoError(t, migrate.Validate(os.DirFS(dir)))

	_, err = migrate.Create(dir, "add order notes", now)
	require.Error(t, err, "same version and name must not overwrite")

	_, err = migrate.Create(dir, "!!!", now)
	require.ErrorContains(t, err, "no usable characters")
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "add_sku_index", migrate.SanitizeName("  Add SKU--index "))
	assert.Equal(t, "", migrate.SanitizeName("__"))
}

func TestValidateReportsEveryProblem(t *testing.T) {
	fsys := fstest.MapFS{
		"20260101000000_ok.sql":      {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"20260101000000_dup.sql":     {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"badname.sql":                {Data: []byte("-- +goose Up\n")},
		"20260102000000_no_down.sql": {Data: []byte("-- +goose Up\n")},
		"README.md":                  {Data: []byte("ignored")},
	}
	err := migrate.Validate(fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already used by")
	assert.Contains(t, err.Error(), "badname.sql: name must be")
	assert.Contains(t, err.Error(), `20260102000000_no_down.sql: missing "-- +goose Down"`)
}

func TestParseVersion(t *testing.T) {
	v, err := migrate.ParseVersion("20260105090400")
	require.NoError(t, err)
	assert.EqualValues(t, 20260105090400, v)

	_, err = migrate.ParseVersion("42")
	assert.Error(t, err)
	_, err = migrate.ParseVersion("2026010509040x")
	assert.Error(t, err)
}

func TestNewRequiresDB(t *testing.T) {
	_, err := migrate.New(nil, migrate.Files())
	require.ErrorContains(t, err, "db is required")
}
