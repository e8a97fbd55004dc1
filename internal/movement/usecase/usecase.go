package usecase

import (
	"context"
	"fmt"

	"github.com/fekuna/omnipos-stock-service/internal/events"
	"github.com/fekuna/omnipos-stock-service/internal/lock"
	"github.com/fekuna/omnipos-stock-service/internal/logger"
	"github.com/fekuna/omnipos-stock-service/internal/metrics"
	"github.com/fekuna/omnipos-stock-service/internal/movement"
	"github.com/fekuna/omnipos-stock-service/internal/movement/dto"
)

const (
	DefaultMaxDepth = 32
	lockAttempts    = 3
)

// CacheInvalidator drops cached item listings once quantities changed.
type CacheInvalidator interface {
	InvalidateListCache(ctx context.Context)
}

type Options struct {
	MaxDepth  int
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Cache     CacheInvalidator
}

type movementUseCase struct {
	repo      movement.Repository
	locker    lock.Locker
	publisher events.Publisher
	metrics   *metrics.Metrics
	cache     CacheInvalidator
	maxDepth  int
	logger    logger.ZapLogger
}

func NewMovementUseCase(repo movement.Repository, locker lock.Locker, opts Options, log logger.ZapLogger) movement.UseCase {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NopPublisher{}
	}
	return &movementUseCase{
		repo:      repo,
		locker:    locker,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		cache:     opts.Cache,
		maxDepth:  opts.MaxDepth,
		logger:    log,
	}
}

func (uc *movementUseCase) ListMovements(ctx context.Context, filters *dto.MovementFilters) (*dto.MovementList, error) {
	filters.Normalize()
	if filters.Kind != "" {
		if err := validateKind(filters.Kind); err != nil {
			return nil, err
		}
	}

	items, filtered, err := uc.repo.ListMovements(ctx, filters)
	if err != nil {
		return nil, err
	}
	total, err := uc.repo.CountMovements(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.MovementList{Items: items, Total: total, TotalFiltered: filtered}, nil
}

// exceedsDepth reports whether an item depth levels below the movement or resolution root is
// past the nesting limit. The root is depth 0. The planner and the resolver both count this way.
func exceedsDepth(depth, maxDepth int) bool {
	return depth > maxDepth
}

func validateKind(kind string) error {
	switch kind {
	case "in", "out", "adjustment":
		return nil
	}
	return fmt.Errorf("%w: unknown kind %q", movement.ErrInvalidMovement, kind)
}
