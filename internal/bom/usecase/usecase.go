package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/bom"
	"github.com/fekuna/omnipos-stock-service/internal/bom/dto"
	"github.com/fekuna/omnipos-stock-service/internal/lock"
	"github.com/fekuna/omnipos-stock-service/internal/logger"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// graphLockKey serializes every BOM write so cycle checks see a stable graph.
const graphLockKey = "bom:graph"

// CacheInvalidator drops cached item listings after a composite flag changes.
type CacheInvalidator interface {
	InvalidateListCache(ctx context.Context)
}

type bomUseCase struct {
	repo   bom.Repository
	locker lock.Locker
	cache  CacheInvalidator
	logger logger.ZapLogger
}

func NewBOMUseCase(repo bom.Repository, locker lock.Locker, cache CacheInvalidator, log logger.ZapLogger) bom.UseCase {
	return &bomUseCase{
		repo:   repo,
		locker: locker,
		cache:  cache,
		logger: log,
	}
}

func (uc *bomUseCase) AddEdge(ctx context.Context, input *dto.AddEdgeInput) (*model.BOMEdge, error) {
	mainID := strings.TrimSpace(input.MainSKUID)
	compID := strings.TrimSpace(input.ComponentSKUID)
	if err := validatePair(mainID, compID, input.QuantityPerUnit); err != nil {
		return nil, err
	}

	unlock, err := uc.locker.Lock(ctx, lockKeys(mainID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := uc.checkItems(ctx, mainID, compID); err != nil {
		return nil, err
	}

	graph, err := uc.loadGraph(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range graph[mainID] {
		if e == compID {
			return nil, fmt.Errorf("%w: component already linked to this item", bom.ErrInvalidEdge)
		}
	}
	if reaches(graph, compID, mainID) {
		return nil, fmt.Errorf("%w: edge would create a cycle", bom.ErrInvalidEdge)
	}

	edge := &model.BOMEdge{
		ID:              uuid.New().String(),
		MainSKUID:       mainID,
		ComponentSKUID:  compID,
		QuantityPerUnit: input.QuantityPerUnit,
		CreatedAt:       time.Now().UTC(),
	}
	if err := uc.repo.Create(ctx, edge); err != nil {
		return nil, err
	}

	uc.logger.Info("bom edge added",
		zap.String("main_sku_id", mainID),
		zap.String("component_sku_id", compID),
		zap.Int("quantity_per_unit", input.QuantityPerUnit),
	)
	uc.invalidate(ctx)
	return edge, nil
}

func (uc *bomUseCase) RemoveEdge(ctx context.Context, id string) error {
	edge, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if edge == nil {
		return bom.ErrNotFound
	}

	unlock, err := uc.locker.Lock(ctx, lockKeys(edge.MainSKUID))
	if err != nil {
		return err
	}
	defer unlock()

	// Another writer may have removed it while we waited.
	if edge, err = uc.repo.FindByID(ctx, id); err != nil {
		return err
	}
	if edge == nil {
		return bom.ErrNotFound
	}

	if err := uc.repo.Delete(ctx, edge); err != nil {
		return err
	}
	uc.logger.Info("bom edge removed", zap.String("edge_id", id), zap.String("main_sku_id", edge.MainSKUID))
	uc.invalidate(ctx)
	return nil
}

func (uc *bomUseCase) ReplaceEdges(ctx context.Context, input *dto.ReplaceEdgesInput) ([]model.BOMEdgeView, error) {
	mainID := strings.TrimSpace(input.MainSKUID)
	seen := make(map[string]struct{}, len(input.Components))
	for _, c := range input.Components {
		compID := strings.TrimSpace(c.ComponentSKUID)
		if err := validatePair(mainID, compID, c.QuantityPerUnit); err != nil {
			return nil, err
		}
		if _, dup := seen[compID]; dup {
			return nil, fmt.Errorf("%w: component %s listed twice", bom.ErrInvalidEdge, compID)
		}
		seen[compID] = struct{}{}
	}

	unlock, err := uc.locker.Lock(ctx, lockKeys(mainID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	exists, err := uc.repo.ItemExists(ctx, mainID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: main item %s does not exist", bom.ErrInvalidEdge, mainID)
	}
	for compID := range seen {
		exists, err := uc.repo.ItemExists(ctx, compID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: component %s does not exist", bom.ErrInvalidEdge, compID)
		}
	}

	graph, err := uc.loadGraph(ctx)
	if err != nil {
		return nil, err
	}
	// Submitted order is kept through created_at offsets.
	now := time.Now().UTC()
	edges := make([]model.BOMEdge, 0, len(input.Components))
	next := make([]string, 0, len(input.Components))
	for i, c := range input.Components {
		compID := strings.TrimSpace(c.ComponentSKUID)
		next = append(next, compID)
		edges = append(edges, model.BOMEdge{
			ID:              uuid.New().String(),
			MainSKUID:       mainID,
			ComponentSKUID:  compID,
			QuantityPerUnit: c.QuantityPerUnit,
			CreatedAt:       now.Add(time.Duration(i) * time.Microsecond),
		})
	}
	graph[mainID] = next
	for _, compID := range next {
		if reaches(graph, compID, mainID) {
			return nil, fmt.Errorf("%w: component %s would create a cycle", bom.ErrInvalidEdge, compID)
		}
	}

	if err := uc.repo.Replace(ctx, mainID, edges); err != nil {
		return nil, err
	}
	uc.logger.Info("bom edges replaced", zap.String("main_sku_id", mainID), zap.Int("components", len(edges)))
	uc.invalidate(ctx)

	return uc.repo.ListByMain(ctx, mainID)
}

func (uc *bomUseCase) ListEdges(ctx context.Context, mainID string) ([]model.BOMEdgeView, error) {
	exists, err := uc.repo.ItemExists(ctx, mainID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: item %s", bom.ErrNotFound, mainID)
	}
	return uc.repo.ListByMain(ctx, mainID)
}

func (uc *bomUseCase) ListComposites(ctx context.Context) ([]dto.Composite, error) {
	rows, err := uc.repo.ListCompositeRows(ctx)
	if err != nil {
		return nil, err
	}

	out := []dto.Composite{}
	index := make(map[string]int)
	for _, row := range rows {
		i, ok := index[row.MainSKUID]
		if !ok {
			i = len(out)
			index[row.MainSKUID] = i
			out = append(out, dto.Composite{
				MainSKUID: row.MainSKUID,
				MainSKU:   row.MainSKU,
				MainTitle: row.MainTitle,
			})
		}
		out[i].Components = append(out[i].Components, dto.CompositeComponent{
			EdgeID:          row.EdgeID,
			ComponentSKUID:  row.ComponentSKUID,
			ComponentSKU:    row.ComponentSKU,
			ComponentTitle:  row.ComponentTitle,
			QuantityPerUnit: row.QuantityPerUnit,
		})
	}
	return out, nil
}

func (uc *bomUseCase) checkItems(ctx context.Context, mainID, compID string) error {
	for _, id := range []string{mainID, compID} {
		exists, err := uc.repo.ItemExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: item %s does not exist", bom.ErrInvalidEdge, id)
		}
	}
	return nil
}

func (uc *bomUseCase) loadGraph(ctx context.Context) (map[string][]string, error) {
	edges, err := uc.repo.AllEdges(ctx)
	if err != nil {
		return nil, err
	}
	graph := make(map[string][]string)
	for _, e := range edges {
		graph[e.MainSKUID] = append(graph[e.MainSKUID], e.ComponentSKUID)
	}
	return graph, nil
}

func (uc *bomUseCase) invalidate(ctx context.Context) {
	if uc.cache != nil {
		uc.cache.InvalidateListCache(ctx)
	}
}

// lockKeys serializes graph writers with each other and with movements that expand mainID.
func lockKeys(mainID string) []string {
	return []string{graphLockKey, mainID}
}

func validatePair(mainID, compID string, perUnit int) error {
	if mainID == "" || compID == "" {
		return fmt.Errorf("%w: main and component ids are required", bom.ErrInvalidEdge)
	}
	if mainID == compID {
		return fmt.Errorf("%w: an item cannot be its own component", bom.ErrInvalidEdge)
	}
	if perUnit < 1 {
		return fmt.Errorf("%w: quantity per unit must be at least 1", bom.ErrInvalidEdge)
	}
	return nil
}

// reaches reports whether target is reachable from start following main -> component edges.
func reaches(graph map[string][]string, start, target string) bool {
	seen := map[string]bool{}
	stack := []string{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == target {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, graph[n]...)
	}
	return false
}
