package movement

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/movement/dto"
)

// QuantityWrite is one compare-and-swap on an item quantity.
type QuantityWrite struct {
	ItemID   string
	Previous int
	New      int
}

type Repository interface {
	GetItem(ctx context.Context, id string) (*model.StockItem, error)
	GetItemBySKU(ctx context.Context, sku string) (*model.StockItem, error)
	// ListComponents returns the outgoing edges of mainID in insertion order.
	ListComponents(ctx context.Context, mainID string) ([]model.BOMEdge, error)

	// Apply performs every write and appends every record in one transaction. A write whose
	// previous quantity no longer matches aborts the whole transaction with
	// ErrConcurrentModification.
	Apply(ctx context.Context, writes []QuantityWrite, records []model.StockMovement) error

	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovementView, int, error)
	CountMovements(ctx context.Context) (int, error)
}
