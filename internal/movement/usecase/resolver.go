package usecase

import (
	"context"
	"fmt"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/movement"
	"github.com/fekuna/omnipos-stock-service/internal/movement/dto"
)

// resolver computes max-assemblable quantities for one call. Results are memoized by item id;
// the path set turns a cycle into ErrCyclicBOM instead of unbounded recursion.
type resolver struct {
	repo     movement.Repository
	maxDepth int
	memo     map[string]int
	path     map[string]bool
}

func newResolver(repo movement.Repository, maxDepth int) *resolver {
	return &resolver{
		repo:     repo,
		maxDepth: maxDepth,
		memo:     make(map[string]int),
		path:     make(map[string]bool),
	}
}

func (r *resolver) resolve(ctx context.Context, id string, depth int) (int, error) {
	if v, ok := r.memo[id]; ok {
		return v, nil
	}
	if r.path[id] {
		return 0, fmt.Errorf("%w: item %s reached again through its own components", movement.ErrCyclicBOM, id)
	}
	if exceedsDepth(depth, r.maxDepth) {
		return 0, fmt.Errorf("%w: nesting deeper than %d levels", movement.ErrCyclicBOM, r.maxDepth)
	}

	item, err := r.repo.GetItem(ctx, id)
	if err != nil {
		return 0, err
	}
	if item == nil {
		r.memo[id] = 0
		return 0, nil
	}
	if !item.IsComposite {
		r.memo[id] = item.Quantity
		return item.Quantity, nil
	}

	edges, err := r.repo.ListComponents(ctx, id)
	if err != nil {
		return 0, err
	}
	result, err := r.bottleneck(ctx, id, edges, depth)
	if err != nil {
		return 0, err
	}
	r.memo[id] = result
	return result, nil
}

// bottleneck is the min over edges of floor(component availability / quantity per unit).
func (r *resolver) bottleneck(ctx context.Context, id string, edges []model.BOMEdge, depth int) (int, error) {
	if len(edges) == 0 {
		return 0, nil
	}

	r.path[id] = true
	defer delete(r.path, id)

	result := -1
	for _, e := range edges {
		avail, err := r.resolve(ctx, e.ComponentSKUID, depth+1)
		if err != nil {
			return 0, err
		}
		supported := avail / e.QuantityPerUnit
		if result < 0 || supported < result {
			result = supported
		}
	}
	return result, nil
}

func (uc *movementUseCase) ResolveMaxAssemblable(ctx context.Context, itemID string) (int, error) {
	return newResolver(uc.repo, uc.maxDepth).resolve(ctx, itemID, 0)
}

func (uc *movementUseCase) CompositeStock(ctx context.Context, itemID string) (*dto.CompositeStock, error) {
	item, err := uc.repo.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: %s", movement.ErrNotFound, itemID)
	}

	out := &dto.CompositeStock{
		ItemID:           item.ID,
		SKU:              item.SKU,
		IsComposite:      item.IsComposite,
		DirectComponents: []dto.ComponentAvailable{},
	}
	if !item.IsComposite {
		return out, nil
	}

	edges, err := uc.repo.ListComponents(ctx, item.ID)
	if err != nil {
		return nil, err
	}

	r := newResolver(uc.repo, uc.maxDepth)
	maxUnits, err := r.bottleneck(ctx, item.ID, edges, 0)
	if err != nil {
		return nil, err
	}
	out.MaxAssemblable = &maxUnits

	for _, e := range edges {
		comp, err := uc.repo.GetItem(ctx, e.ComponentSKUID)
		if err != nil {
			return nil, err
		}
		entry := dto.ComponentAvailable{ComponentID: e.ComponentSKUID, Required: e.QuantityPerUnit}
		if comp != nil {
			entry.SKU = comp.SKU
			entry.Title = comp.Title
		}
		// Memoized by the bottleneck pass above.
		if entry.Available, err = r.resolve(ctx, e.ComponentSKUID, 1); err != nil {
			return nil, err
		}
		out.DirectComponents = append(out.DirectComponents, entry)
	}
	return out, nil
}
