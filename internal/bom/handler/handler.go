package handler

import (
	"errors"

	"github.com/fekuna/omnipos-stock-service/internal/bom"
	"github.com/fekuna/omnipos-stock-service/internal/bom/dto"
	"github.com/fekuna/omnipos-stock-service/internal/logger"
	"github.com/fekuna/omnipos-stock-service/internal/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type BOMHandler struct {
	uc     bom.UseCase
	logger logger.ZapLogger
}

func NewBOMHandler(uc bom.UseCase, log logger.ZapLogger) *BOMHandler {
	return &BOMHandler{
		uc:     uc,
		logger: log,
	}
}

func (h *BOMHandler) MapRoutes(rg *gin.RouterGroup) {
	rg.GET("/bom-edges", h.ListEdges)
	rg.POST("/bom-edges", h.AddEdge)
	rg.DELETE("/bom-edges/:id", h.RemoveEdge)
	rg.PUT("/bom-edges/:mainSkuId", h.ReplaceEdges)
	rg.GET("/composites", h.ListComposites)
}

func (h *BOMHandler) AddEdge(c *gin.Context) {
	var input dto.AddEdgeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.BadRequest(c, "invalid body: "+err.Error())
		return
	}

	edge, err := h.uc.AddEdge(c.Request.Context(), &input)
	if err != nil {
		h.fail(c, "failed to add bom edge", err)
		return
	}
	response.Created(c, edge)
}

func (h *BOMHandler) RemoveEdge(c *gin.Context) {
	if err := h.uc.RemoveEdge(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "failed to remove bom edge", err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

// ReplaceEdges swaps the whole component list of the main item named in the path.
func (h *BOMHandler) ReplaceEdges(c *gin.Context) {
	var input dto.ReplaceEdgesInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.BadRequest(c, "invalid body: "+err.Error())
		return
	}
	input.MainSKUID = c.Param("mainSkuId")

	edges, err := h.uc.ReplaceEdges(c.Request.Context(), &input)
	if err != nil {
		h.fail(c, "failed to replace bom edges", err)
		return
	}
	response.Success(c, edges)
}

func (h *BOMHandler) ListEdges(c *gin.Context) {
	mainID := c.Query("mainSkuId")
	if mainID == "" {
		response.BadRequest(c, "mainSkuId is required")
		return
	}

	edges, err := h.uc.ListEdges(c.Request.Context(), mainID)
	if err != nil {
		h.fail(c, "failed to list bom edges", err)
		return
	}
	response.Success(c, edges)
}

func (h *BOMHandler) ListComposites(c *gin.Context) {
	composites, err := h.uc.ListComposites(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to list composites", err)
		return
	}
	response.Success(c, composites)
}

func (h *BOMHandler) fail(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, bom.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, bom.ErrInvalidEdge):
		response.BadRequest(c, err.Error())
	default:
		h.logger.Error(msg, zap.Error(err))
		response.InternalError(c)
	}
}
