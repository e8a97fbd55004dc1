package bom

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/model"
)

type Repository interface {
	ItemExists(ctx context.Context, id string) (bool, error)
	FindByID(ctx context.Context, id string) (*model.BOMEdge, error)
	// AllEdges returns the whole graph, used for cycle checks.
	AllEdges(ctx context.Context) ([]model.BOMEdge, error)
	ListByMain(ctx context.Context, mainID string) ([]model.BOMEdgeView, error)
	ListCompositeRows(ctx context.Context) ([]model.CompositeRow, error)

	// Create inserts the edge and flags its main item composite in one transaction.
	Create(ctx context.Context, edge *model.BOMEdge) error
	// Delete removes the edge and clears the composite flag when it was the last one.
	Delete(ctx context.Context, edge *model.BOMEdge) error
	// Replace swaps every edge of mainID for edges in one transaction.
	Replace(ctx context.Context, mainID string, edges []model.BOMEdge) error
}
