package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/events"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/movement"
	"github.com/fekuna/omnipos-stock-service/internal/movement/dto"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// step is one planned leaf mutation. empty marks a composite without components reached by an
// out movement; it can never be satisfied.
type step struct {
	item     *model.StockItem
	quantity int
	empty    bool
}

type plan struct {
	root     *model.StockItem
	kind     model.MovementKind
	quantity int
	steps    []step
	ids      map[string]struct{}
}

func (p *plan) sortedIDs() []string {
	ids := make([]string, 0, len(p.ids))
	for id := range p.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// planner expands a movement depth-first over the BOM with scaled quantities. Items and edges
// are read once per plan.
type planner struct {
	repo     movement.Repository
	maxDepth int
	items    map[string]*model.StockItem
	path     map[string]bool
}

func (uc *movementUseCase) newPlanner() *planner {
	return &planner{
		repo:     uc.repo,
		maxDepth: uc.maxDepth,
		items:    make(map[string]*model.StockItem),
		path:     make(map[string]bool),
	}
}

func (p *planner) item(ctx context.Context, id string) (*model.StockItem, error) {
	if it, ok := p.items[id]; ok {
		return it, nil
	}
	it, err := p.repo.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if it != nil {
		p.items[id] = it
	}
	return it, nil
}

func (p *planner) build(ctx context.Context, rootID string, kind model.MovementKind, quantity int) (*plan, error) {
	root, err := p.item(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, fmt.Errorf("%w: %s", movement.ErrNotFound, rootID)
	}

	pl := &plan{
		root:     root,
		kind:     kind,
		quantity: quantity,
		ids:      map[string]struct{}{root.ID: {}},
	}
	if !root.IsComposite {
		pl.steps = []step{{item: root, quantity: quantity}}
		return pl, nil
	}
	if err := p.expand(ctx, pl, root, quantity, 0); err != nil {
		return nil, err
	}
	return pl, nil
}

func (p *planner) expand(ctx context.Context, pl *plan, composite *model.StockItem, quantity, depth int) error {
	edges, err := p.repo.ListComponents(ctx, composite.ID)
	if err != nil {
		return err
	}
	if len(edges) == 0 {
		if pl.kind == model.MovementOut {
			pl.steps = append(pl.steps, step{item: composite, quantity: quantity, empty: true})
		}
		return nil
	}

	p.path[composite.ID] = true
	defer delete(p.path, composite.ID)

	for _, e := range edges {
		if exceedsDepth(depth+1, p.maxDepth) {
			return fmt.Errorf("%w: nesting deeper than %d levels at %s", movement.ErrCyclicBOM, p.maxDepth, composite.SKU)
		}
		if p.path[e.ComponentSKUID] {
			return fmt.Errorf("%w: %s reaches itself through its components", movement.ErrCyclicBOM, composite.SKU)
		}
		comp, err := p.item(ctx, e.ComponentSKUID)
		if err != nil {
			return err
		}
		if comp == nil {
			return fmt.Errorf("%w: component %s of %s", movement.ErrNotFound, e.ComponentSKUID, composite.SKU)
		}

		scaled := quantity * e.QuantityPerUnit
		if scaled/e.QuantityPerUnit != quantity {
			return fmt.Errorf("%w: quantity overflows when scaled to %s", movement.ErrInvalidMovement, comp.SKU)
		}

		pl.ids[comp.ID] = struct{}{}
		if comp.IsComposite {
			if err := p.expand(ctx, pl, comp, scaled, depth+1); err != nil {
				return err
			}
			continue
		}
		pl.steps = append(pl.steps, step{item: comp, quantity: scaled})
	}
	return nil
}

// applied is a validated step with its resulting quantities.
type applied struct {
	item     *model.StockItem
	quantity int
	previous int
	next     int
}

// simulate runs every step against a running quantity map and collects every shortage before
// anything is written. An adjustment sets each leaf once to its demand summed over every route.
func simulate(pl *plan) ([]applied, error) {
	demand := make(map[string]int)
	for _, s := range pl.steps {
		total, ok := addQuantity(demand[s.item.ID], s.quantity)
		if !ok {
			return nil, fmt.Errorf("%w: quantity overflows on %s", movement.ErrInvalidMovement, s.item.SKU)
		}
		demand[s.item.ID] = total
	}

	running := make(map[string]int)
	var shortages []movement.Shortage
	short := make(map[string]bool)
	out := make([]applied, 0, len(pl.steps))

	for _, s := range pl.steps {
		if s.empty {
			if !short[s.item.ID] {
				short[s.item.ID] = true
				shortages = append(shortages, movement.NewShortage(s.item.ID, s.item.SKU, demand[s.item.ID], 0))
			}
			continue
		}

		prev, seen := running[s.item.ID]
		if !seen {
			prev = s.item.Quantity
		}

		quantity := s.quantity
		var next int
		switch pl.kind {
		case model.MovementIn:
			var ok bool
			if next, ok = addQuantity(prev, s.quantity); !ok {
				return nil, fmt.Errorf("%w: quantity overflows on %s", movement.ErrInvalidMovement, s.item.SKU)
			}
		case model.MovementOut:
			next = prev - s.quantity
			if next < 0 {
				if !short[s.item.ID] {
					short[s.item.ID] = true
					shortages = append(shortages, movement.NewShortage(s.item.ID, s.item.SKU, demand[s.item.ID], s.item.Quantity))
				}
				continue
			}
		case model.MovementAdjustment:
			if seen {
				continue
			}
			quantity = demand[s.item.ID]
			next = quantity
		}

		running[s.item.ID] = next
		out = append(out, applied{item: s.item, quantity: quantity, previous: prev, next: next})
	}

	if len(shortages) > 0 {
		return nil, &movement.InsufficientStockError{Shortage: shortages[0], Shortages: shortages}
	}
	if pl.kind == model.MovementIn && pl.root.IsComposite {
		if _, ok := addQuantity(pl.root.Quantity, pl.quantity); !ok {
			return nil, fmt.Errorf("%w: quantity overflows on %s", movement.ErrInvalidMovement, pl.root.SKU)
		}
	}
	return out, nil
}

// addQuantity adds two non-negative quantities, reporting false on overflow.
func addQuantity(a, b int) (int, bool) {
	if a > math.MaxInt-b {
		return 0, false
	}
	return a + b, true
}

// compositeQuantity is the cosmetic quantity a composite keeps after a movement.
func compositeQuantity(kind model.MovementKind, current, quantity int) int {
	switch kind {
	case model.MovementIn:
		return current + quantity
	case model.MovementOut:
		if current < quantity {
			return 0
		}
		return current - quantity
	default:
		return quantity
	}
}

func (uc *movementUseCase) ApplyMovement(ctx context.Context, input *dto.MovementInput) (*dto.MovementResult, error) {
	start := time.Now()

	if !input.Kind.Valid() {
		return nil, uc.reject(fmt.Errorf("%w: kind must be one of in, out, adjustment", movement.ErrInvalidMovement))
	}
	if input.Quantity <= 0 {
		return nil, uc.reject(fmt.Errorf("%w: quantity must be a positive integer", movement.ErrInvalidMovement))
	}

	itemID := strings.TrimSpace(input.ItemID)
	if itemID == "" {
		sku := strings.TrimSpace(input.SKU)
		if sku == "" {
			return nil, uc.reject(fmt.Errorf("%w: skuId is required", movement.ErrInvalidMovement))
		}
		item, err := uc.repo.GetItemBySKU(ctx, sku)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, uc.reject(fmt.Errorf("%w: sku %s", movement.ErrNotFound, sku))
		}
		itemID = item.ID
	}

	pl, err := uc.newPlanner().build(ctx, itemID, input.Kind, input.Quantity)
	if err != nil {
		return nil, uc.reject(err)
	}

	for attempt := 1; ; attempt++ {
		locked := pl.sortedIDs()
		unlock, err := uc.locker.Lock(ctx, locked)
		if err != nil {
			return nil, err
		}

		// Re-read everything under the lock; the first plan only told us what to lock.
		pl, err = uc.newPlanner().build(ctx, itemID, input.Kind, input.Quantity)
		if err != nil {
			unlock()
			return nil, uc.reject(err)
		}
		if !covers(locked, pl.ids) {
			unlock()
			if attempt >= lockAttempts {
				return nil, uc.reject(fmt.Errorf("%w: bill of materials kept changing", movement.ErrConcurrentModification))
			}
			uc.logger.Debug("bom changed while locking, retrying", zap.String("item_id", itemID), zap.Int("attempt", attempt))
			continue
		}

		result, evt, err := uc.commit(ctx, pl, input)
		unlock()
		if err != nil {
			return nil, uc.reject(err)
		}

		uc.afterCommit(ctx, pl, result, evt, time.Since(start))
		return result, nil
	}
}

func covers(locked []string, ids map[string]struct{}) bool {
	set := make(map[string]struct{}, len(locked))
	for _, id := range locked {
		set[id] = struct{}{}
	}
	for id := range ids {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

func (uc *movementUseCase) commit(ctx context.Context, pl *plan, input *dto.MovementInput) (*dto.MovementResult, *events.MovementEvent, error) {
	leaves, err := simulate(pl)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	topID := uuid.New().String()
	reason := strings.TrimSpace(input.Reason)
	actor := optional(input.ActorID)
	root := pl.root

	result := &dto.MovementResult{
		MovementID: topID,
		ItemID:     root.ID,
		SKU:        root.SKU,
		Kind:       pl.kind,
		Quantity:   pl.quantity,
		Cascade:    []dto.CascadeEntry{},
	}
	evt := &events.MovementEvent{
		EventType:  events.RoutingKeyStockMoved,
		MovementID: topID,
		ItemID:     root.ID,
		SKU:        root.SKU,
		Kind:       string(pl.kind),
		Quantity:   pl.quantity,
		ActorID:    input.ActorID,
		Timestamp:  now,
	}

	writes := make([]movement.QuantityWrite, 0, len(leaves)+1)
	records := make([]model.StockMovement, 0, len(leaves)+1)

	if !root.IsComposite {
		leaf := leaves[0]
		result.PreviousQuantity, result.NewQuantity = leaf.previous, leaf.next
	} else {
		cascadeReason := fmt.Sprintf("auto: composite %s movement: %s", root.SKU, reason)
		for _, leaf := range leaves {
			id := uuid.New().String()
			writes = append(writes, movement.QuantityWrite{ItemID: leaf.item.ID, Previous: leaf.previous, New: leaf.next})
			records = append(records, model.StockMovement{
				ID:               id,
				ItemID:           leaf.item.ID,
				MovementType:     pl.kind,
				Quantity:         leaf.quantity,
				PreviousQuantity: leaf.previous,
				NewQuantity:      leaf.next,
				Reason:           &cascadeReason,
				ActorID:          actor,
				ParentMovementID: &topID,
				IsCascade:        true,
				CreatedAt:        now,
			})
			result.Cascade = append(result.Cascade, dto.CascadeEntry{
				MovementID:       id,
				ItemID:           leaf.item.ID,
				SKU:              leaf.item.SKU,
				Quantity:         leaf.quantity,
				PreviousQuantity: leaf.previous,
				NewQuantity:      leaf.next,
			})
			evt.Touched = append(evt.Touched, events.TouchedItem{ItemID: leaf.item.ID, Previous: leaf.previous, New: leaf.next})
		}
		result.PreviousQuantity = root.Quantity
		result.NewQuantity = compositeQuantity(pl.kind, root.Quantity, pl.quantity)
	}

	// The top-level record goes last so it leads the newest-first ledger.
	writes = append(writes, movement.QuantityWrite{ItemID: root.ID, Previous: result.PreviousQuantity, New: result.NewQuantity})
	records = append(records, model.StockMovement{
		ID:               topID,
		ItemID:           root.ID,
		MovementType:     pl.kind,
		Quantity:         pl.quantity,
		PreviousQuantity: result.PreviousQuantity,
		NewQuantity:      result.NewQuantity,
		Reason:           optional(reason),
		ActorID:          actor,
		CreatedAt:        now,
	})
	evt.Touched = append(evt.Touched, events.TouchedItem{ItemID: root.ID, Previous: result.PreviousQuantity, New: result.NewQuantity})
	evt.Previous, evt.New = result.PreviousQuantity, result.NewQuantity

	if err := uc.repo.Apply(ctx, writes, records); err != nil {
		return nil, nil, err
	}
	return result, evt, nil
}

func (uc *movementUseCase) afterCommit(ctx context.Context, pl *plan, result *dto.MovementResult, evt *events.MovementEvent, took time.Duration) {
	uc.logger.Info("stock movement applied",
		zap.String("movement_id", result.MovementID),
		zap.String("sku", result.SKU),
		zap.String("kind", string(result.Kind)),
		zap.Int("quantity", result.Quantity),
		zap.Int("previous_quantity", result.PreviousQuantity),
		zap.Int("new_quantity", result.NewQuantity),
		zap.Int("cascade", len(result.Cascade)),
	)

	if uc.metrics != nil {
		uc.metrics.ObserveMovement(string(pl.kind), pl.root.IsComposite, len(result.Cascade), took)
	}
	if uc.cache != nil {
		uc.cache.InvalidateListCache(ctx)
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := uc.publisher.PublishMovement(pctx, evt); err != nil {
		uc.logger.Error("failed to publish stock movement event", zap.String("movement_id", result.MovementID), zap.Error(err))
	}
}

// reject counts a business-rule rejection and passes the error through.
func (uc *movementUseCase) reject(err error) error {
	if uc.metrics == nil {
		return err
	}
	var reason string
	switch {
	case errors.Is(err, movement.ErrInsufficientStock):
		reason = "insufficient_stock"
	case errors.Is(err, movement.ErrInvalidMovement):
		reason = "invalid_movement"
	case errors.Is(err, movement.ErrNotFound):
		reason = "not_found"
	case errors.Is(err, movement.ErrCyclicBOM):
		reason = "cyclic_bom"
	case errors.Is(err, movement.ErrConcurrentModification):
		reason = "concurrent_modification"
	default:
		return err
	}
	uc.metrics.ObserveRejection(reason)
	return err
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
