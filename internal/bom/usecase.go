package bom

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/bom/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
)

type UseCase interface {
	AddEdge(ctx context.Context, input *dto.AddEdgeInput) (*model.BOMEdge, error)
	RemoveEdge(ctx context.Context, id string) error
	ReplaceEdges(ctx context.Context, input *dto.ReplaceEdgesInput) ([]model.BOMEdgeView, error)
	ListEdges(ctx context.Context, mainID string) ([]model.BOMEdgeView, error)
	ListComposites(ctx context.Context) ([]dto.Composite, error)
}
