package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fekuna/omnipos-stock-service/internal/cache"
	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/inventory/repository"
	"github.com/fekuna/omnipos-stock-service/internal/lock"
	"github.com/fekuna/omnipos-stock-service/internal/logger"
	"github.com/fekuna/omnipos-stock-service/internal/testutil"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUseCase(t *testing.T) (inventory.UseCase, *sqlx.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return NewInventoryUseCase(repository.NewSQLiteRepository(db), lock.NewKeyedMutex(), nil, nil, logger.NewNop()), db
}

func TestCreateItem(t *testing.T) {
	uc, _ := newUseCase(t)
	ctx := context.Background()

	item, err := uc.CreateItem(ctx, &dto.CreateItemInput{SKU: " A-1 ", Title: "Widget", Quantity: 7, EAN: "789", Category: "parts"})
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, "A-1", item.SKU)
	require.NotNil(t, item.EAN)
	assert.Equal(t, "789", *item.EAN)
	assert.Nil(t, item.Location)

	got, err := uc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Quantity)
	assert.Equal(t, "parts", *got.Category)

	bySKU, err := uc.GetItemBySKU(ctx, "A-1")
	require.NoError(t, err)
	assert.Equal(t, item.ID, bySKU.ID)
}

func TestCreateItemValidation(t *testing.T) {
	uc, _ := newUseCase(t)
	ctx := context.Background()

	_, err := uc.CreateItem(ctx, &dto.CreateItemInput{SKU: "", Title: "x"})
	assert.ErrorIs(t, err, inventory.ErrInvalidItem)

	_, err = uc.CreateItem(ctx, &dto.CreateItemInput{SKU: "A", Title: "x", Quantity: -1})
	assert.ErrorIs(t, err, inventory.ErrInvalidItem)

	_, err = uc.CreateItem(ctx, &dto.CreateItemInput{SKU: "A", Title: "x", EAN: "1"})
	require.NoError(t, err)

	_, err = uc.CreateItem(ctx, &dto.CreateItemInput{SKU: "A", Title: "y"})
	assert.ErrorIs(t, err, inventory.ErrConflict)

	_, err = uc.CreateItem(ctx, &dto.CreateItemInput{SKU: "B", Title: "y", EAN: "1"})
	assert.ErrorIs(t, err, inventory.ErrConflict)
}

func TestGetItemNotFound(t *testing.T) {
	uc, _ := newUseCase(t)

	_, err := uc.GetItem(context.Background(), "missing")
	assert.ErrorIs(t, err, inventory.ErrNotFound)
	_, err = uc.GetItemBySKU(context.Background(), "missing")
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestListItemsFilters(t *testing.T) {
	uc, db := newUseCase(t)
	ctx := context.Background()

	testutil.SeedItem(t, db, "BOLT", 0)
	testutil.SeedItem(t, db, "NUT", 5)
	testutil.SeedItem(t, db, "WASHER", 50)
	_, err := db.Exec(`UPDATE stock_items SET min_quantity = 10`)
	require.NoError(t, err)

	list, err := uc.ListItems(ctx, &dto.ItemFilters{})
	require.NoError(t, err)
	assert.Equal(t, 3, list.Total)
	assert.Equal(t, 3, list.TotalFiltered)
	require.Len(t, list.Items, 3)
	assert.Equal(t, "BOLT", list.Items[0].SKU)

	list, err = uc.ListItems(ctx, &dto.ItemFilters{LowStock: true})
	require.NoError(t, err)
	assert.Equal(t, 2, list.TotalFiltered)

	list, err = uc.ListItems(ctx, &dto.ItemFilters{NoStock: true})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "BOLT", list.Items[0].SKU)

	list, err = uc.ListItems(ctx, &dto.ItemFilters{WithStock: true, Search: "sh"})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "WASHER", list.Items[0].SKU)
	assert.Equal(t, 3, list.Total)

	list, err = uc.ListItems(ctx, &dto.ItemFilters{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "NUT", list.Items[0].SKU)
	assert.Equal(t, 3, list.TotalFiltered)
}

func TestListItemsCacheInvalidatedOnWrite(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisClient(&cache.Config{Addr: mr.Addr()})
	require.NoError(t, err)
	defer rc.Close()

	uc := NewInventoryUseCase(repository.NewSQLiteRepository(db), nil, rc, nil, logger.NewNop())
	ctx := context.Background()

	testutil.SeedItem(t, db, "A", 1)
	list, err := uc.ListItems(ctx, &dto.ItemFilters{})
	require.NoError(t, err)
	assert.Len(t, list.Items, 1)
	assert.Len(t, mr.Keys(), 1)

	// A row written behind the use-case is not visible until the cache is dropped.
	testutil.SeedItem(t, db, "B", 1)
	list, err = uc.ListItems(ctx, &dto.ItemFilters{})
	require.NoError(t, err)
	assert.Len(t, list.Items, 1)

	_, err = uc.CreateItem(ctx, &dto.CreateItemInput{SKU: "C", Title: "C"})
	require.NoError(t, err)
	assert.Empty(t, mr.Keys())

	list, err = uc.ListItems(ctx, &dto.ItemFilters{})
	require.NoError(t, err)
	assert.Len(t, list.Items, 3)
}

func TestUpdateItem(t *testing.T) {
	uc, db := newUseCase(t)
	ctx := context.Background()

	a := testutil.SeedItem(t, db, "A", 4)
	testutil.SeedItem(t, db, "B", 0)

	updated, err := uc.UpdateItem(ctx, &dto.UpdateItemInput{ID: a.ID, SKU: "A2", Title: "Renamed", MinQuantity: 2, Location: "shelf 1"})
	require.NoError(t, err)
	assert.Equal(t, "A2", updated.SKU)

	got, err := uc.GetItem(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, 4, got.Quantity)
	assert.Equal(t, "shelf 1", *got.Location)

	_, err = uc.UpdateItem(ctx, &dto.UpdateItemInput{ID: a.ID, SKU: "B", Title: "dup"})
	assert.ErrorIs(t, err, inventory.ErrConflict)

	_, err = uc.UpdateItem(ctx, &dto.UpdateItemInput{ID: "missing", SKU: "Z", Title: "Z"})
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestUpdateItemCannotClearCompositeWithEdges(t *testing.T) {
	uc, db := newUseCase(t)
	ctx := context.Background()

	kit := testutil.SeedItem(t, db, "KIT", 0)
	part := testutil.SeedItem(t, db, "PART", 3)
	testutil.SeedEdge(t, db, kit, part, 1)

	no := false
	_, err := uc.UpdateItem(ctx, &dto.UpdateItemInput{ID: kit.ID, SKU: "KIT", Title: "KIT", IsComposite: &no})
	assert.ErrorIs(t, err, inventory.ErrConflict)
}

func TestDeleteItem(t *testing.T) {
	uc, db := newUseCase(t)
	ctx := context.Background()

	kit := testutil.SeedItem(t, db, "KIT", 0)
	part := testutil.SeedItem(t, db, "PART", 3)
	testutil.SeedEdge(t, db, kit, part, 2)

	err := uc.DeleteItem(ctx, part.ID)
	assert.ErrorIs(t, err, inventory.ErrConflict)

	require.NoError(t, uc.DeleteItem(ctx, kit.ID))
	var edges int
	require.NoError(t, db.Get(&edges, `SELECT COUNT(*) FROM bom_edges`))
	assert.Equal(t, 0, edges)

	require.NoError(t, uc.DeleteItem(ctx, part.ID))
	assert.ErrorIs(t, uc.DeleteItem(ctx, part.ID), inventory.ErrNotFound)
}

func TestStatsAndReports(t *testing.T) {
	uc, db := newUseCase(t)
	ctx := context.Background()

	stats, err := uc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalItems)

	testutil.SeedItem(t, db, "A", 0)
	testutil.SeedItem(t, db, "B", 2)
	testutil.SeedItem(t, db, "C", 10)
	kit := testutil.SeedItem(t, db, "KIT", 0)
	part := testutil.SeedItem(t, db, "PART", 4)
	testutil.SeedEdge(t, db, kit, part, 1)
	_, err = db.Exec(`UPDATE stock_items SET min_quantity = 3`)
	require.NoError(t, err)

	stats, err = uc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalItems)
	assert.Equal(t, 16, stats.TotalQuantity)
	assert.Equal(t, 3, stats.LowStockItems)
	assert.Equal(t, 2, stats.OutOfStockItems)
	assert.InDelta(t, 3.2, stats.AvgQuantity, 0.0001)

	low, err := uc.LowStockReport(ctx)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "B", low[0].SKU)

	out, err := uc.OutOfStockReport(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "A", out[0].SKU)
}

func TestUpdateItemWaitsForItemLock(t *testing.T) {
	db := testutil.SetupTestDB(t)
	locker := lock.NewKeyedMutex()
	uc := NewInventoryUseCase(repository.NewSQLiteRepository(db), locker, nil, nil, logger.NewNop())
	item := testutil.SeedItem(t, db, "KIT", 0)

	unlock, err := locker.Lock(context.Background(), []string{item.ID})
	require.NoError(t, err)

	yes := true
	done := make(chan error, 1)
	go func() {
		_, err := uc.UpdateItem(context.Background(), &dto.UpdateItemInput{ID: item.ID, SKU: "KIT", Title: "Kit", IsComposite: &yes})
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("item was updated while locked")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("update never acquired the lock")
	}
	got, err := uc.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.True(t, got.IsComposite)
}
