package movement

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/movement/dto"
)

type UseCase interface {
	// ResolveMaxAssemblable returns how many units of the item current stock can cover. Unknown
	// items resolve to 0.
	ResolveMaxAssemblable(ctx context.Context, itemID string) (int, error)
	CompositeStock(ctx context.Context, itemID string) (*dto.CompositeStock, error)

	ApplyMovement(ctx context.Context, input *dto.MovementInput) (*dto.MovementResult, error)
	ListMovements(ctx context.Context, filters *dto.MovementFilters) (*dto.MovementList, error)
}
