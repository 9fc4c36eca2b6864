package products

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mariposavintage/mariposa-backend/pkg/db/models"
	pkgerrors "github.com/mariposavintage/mariposa-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:products_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	productsTable := `
CREATE TABLE products (
  id TEXT PRIMARY KEY,
  sku TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT,
  tags TEXT NOT NULL DEFAULT '{}',
  price_cents INTEGER NOT NULL,
  compare_price_cents INTEGER,
  weight_grams INTEGER NOT NULL DEFAULT 0,
  width_cm INTEGER NOT NULL DEFAULT 0,
  height_cm INTEGER NOT NULL DEFAULT 0,
  length_cm INTEGER NOT NULL DEFAULT 0,
  image_urls TEXT NOT NULL DEFAULT '{}',
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	inventoryTable := `
CREATE TABLE inventory_items (
  product_id TEXT PRIMARY KEY,
  available_qty INTEGER NOT NULL DEFAULT 0,
  reserved_qty INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(productsTable).Error)
	require.NoError(t, db.Exec(inventoryTable).Error)
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, active bool, available int, createdAt time.Time) uuid.UUID {
	t.Helper()
	productID := uuid.New()
	require.NoError(t, db.Exec(
		`INSERT INTO products (id, sku, title, price_cents, is_active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		productID, "SKU-"+productID.String()[:8], "Colar anos 70", 12000, active, createdAt,
	).Error)
	require.NoError(t, db.Create(&models.InventoryItem{
		ProductID:    productID,
		AvailableQty: available,
	}).Error)
	return productID
}

func TestListActiveFiltersAndOrdersNewestFirst(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	older := seedProduct(t, db, true, 1, time.Now().Add(-2*time.Hour))
	newer := seedProduct(t, db, true, 1, time.Now().Add(-time.Hour))
	seedProduct(t, db, false, 1, time.Now())

	items, err := repo.ListActive(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, newer, items[0].ID)
	require.Equal(t, older, items[1].ID)
}

func TestFindByIDPreloadsInventory(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	productID := seedProduct(t, db, true, 3, time.Now())

	product, err := repo.FindByID(ctx, productID)
	require.NoError(t, err)
	require.NotNil(t, product.Inventory)
	require.Equal(t, 3, product.Inventory.AvailableQty)
}

func TestReserveInventoryGuardsAvailability(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	productID := seedProduct(t, db, true, 1, time.Now())

	ok, err := repo.ReserveInventory(ctx, productID, 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.ReserveInventory(ctx, productID, 1)
	require.NoError(t, err)
	require.False(t, ok)

	item, err := repo.FindInventory(ctx, productID)
	require.NoError(t, err)
	require.Equal(t, 0, item.AvailableQty)
	require.Equal(t, 1, item.ReservedQty)
}

func TestReleaseAndCommitInventory(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	productID := seedProduct(t, db, true, 2, time.Now())

	ok, err := repo.ReserveInventory(ctx, productID, 2)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.ReleaseInventory(ctx, productID, 1))
	require.NoError(t, repo.CommitReserved(ctx, productID, 1))

	item, err := repo.FindInventory(ctx, productID)
	require.NoError(t, err)
	require.Equal(t, 1, item.AvailableQty)
	require.Equal(t, 0, item.ReservedQty)
}

func TestServiceGetProductMapsNotFound(t *testing.T) {
	db := newTestDB(t)
	svc, err := NewService(ServiceParams{Repo: NewRepository(db)})
	require.NoError(t, err)

	_, err = svc.GetProduct(context.Background(), uuid.New())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}
