package inventory

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
)

type UseCase interface {
	CreateItem(ctx context.Context, input *dto.CreateItemInput) (*model.StockItem, error)
	GetItem(ctx context.Context, id string) (*model.StockItem, error)
	GetItemBySKU(ctx context.Context, sku string) (*model.StockItem, error)
	ListItems(ctx context.Context, filters *dto.ItemFilters) (*dto.ItemList, error)
	UpdateItem(ctx context.Context, input *dto.UpdateItemInput) (*model.StockItem, error)
	DeleteItem(ctx context.Context, id string) error
	Stats(ctx context.Context) (*model.InventoryStats, error)
	LowStockReport(ctx context.Context) ([]model.StockItem, error)
	OutOfStockReport(ctx context.Context) ([]model.StockItem, error)

	// InvalidateListCache drops every cached list page. Called after quantities change.
	InvalidateListCache(ctx context.Context)
}
