package inventory

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
)

type Repository interface {
	Create(ctx context.Context, item *model.StockItem) error
	FindByID(ctx context.Context, id string) (*model.StockItem, error)
	FindBySKU(ctx context.Context, sku string) (*model.StockItem, error)
	FindByIDs(ctx context.Context, ids []string) ([]model.StockItem, error)
	FindAll(ctx context.Context, filters *dto.ItemFilters) ([]model.StockItem, int, error)
	CountAll(ctx context.Context) (int, error)
	IsSKUUnique(ctx context.Context, sku, excludeID string) (bool, error)
	IsEANUnique(ctx context.Context, ean, excludeID string) (bool, error)
	CountEdges(ctx context.Context, mainID string) (int, error)

	// Update writes metadata only. Quantity is owned by the movement engine.
	Update(ctx context.Context, item *model.StockItem) error
	// Delete removes the item and the edges it owns. It fails with ErrConflict when the item is
	// still a component of another item.
	Delete(ctx context.Context, id string) error

	Stats(ctx context.Context) (*model.InventoryStats, error)
	LowStock(ctx context.Context) ([]model.StockItem, error)
	OutOfStock(ctx context.Context) ([]model.StockItem, error)
}
