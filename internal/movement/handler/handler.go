package handler

import (
	"errors"
	"net/http"

	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/lock"
	"github.com/fekuna/omnipos-stock-service/internal/logger"
	"github.com/fekuna/omnipos-stock-service/internal/movement"
	"github.com/fekuna/omnipos-stock-service/internal/movement/dto"
	"github.com/fekuna/omnipos-stock-service/internal/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type MovementHandler struct {
	uc     movement.UseCase
	logger logger.ZapLogger
}

func NewMovementHandler(uc movement.UseCase, log logger.ZapLogger) *MovementHandler {
	return &MovementHandler{
		uc:     uc,
		logger: log,
	}
}

func (h *MovementHandler) MapRoutes(rg *gin.RouterGroup) {
	rg.GET("/composite-stock", h.CompositeStock)
	rg.POST("/movement", h.ApplyMovement)
	rg.GET("/movements", h.ListMovements)
	rg.GET("/inventory/:id/movements", h.ItemMovements)
}

func (h *MovementHandler) CompositeStock(c *gin.Context) {
	id := c.Query("skuId")
	if id == "" {
		response.BadRequest(c, "skuId is required")
		return
	}

	stock, err := h.uc.CompositeStock(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "failed to resolve composite stock", err)
		return
	}
	response.Success(c, stock)
}

func (h *MovementHandler) ApplyMovement(c *gin.Context) {
	var input dto.MovementInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.BadRequest(c, "invalid body: "+err.Error())
		return
	}
	input.ActorID = auth.Actor(c, input.ActorID)

	result, err := h.uc.ApplyMovement(c.Request.Context(), &input)
	if err != nil {
		h.fail(c, "failed to apply movement", err)
		return
	}
	response.Created(c, result)
}

func (h *MovementHandler) ListMovements(c *gin.Context) {
	var filters dto.MovementFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.BadRequest(c, "invalid query: "+err.Error())
		return
	}
	h.list(c, &filters)
}

// ItemMovements is the ledger of one item, newest first.
func (h *MovementHandler) ItemMovements(c *gin.Context) {
	var filters dto.MovementFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.BadRequest(c, "invalid query: "+err.Error())
		return
	}
	filters.ItemID = c.Param("id")
	h.list(c, &filters)
}

func (h *MovementHandler) list(c *gin.Context, filters *dto.MovementFilters) {
	list, err := h.uc.ListMovements(c.Request.Context(), filters)
	if err != nil {
		h.fail(c, "failed to list movements", err)
		return
	}
	response.Success(c, response.ListResponse{
		Items:         list.Items,
		Total:         list.Total,
		TotalFiltered: list.TotalFiltered,
		Limit:         filters.Limit,
		Offset:        filters.Offset,
	})
}

func (h *MovementHandler) fail(c *gin.Context, msg string, err error) {
	var shortage *movement.InsufficientStockError
	switch {
	case errors.As(err, &shortage):
		response.ErrorWithData(c, http.StatusUnprocessableEntity, err.Error(), shortage)
	case errors.Is(err, movement.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, movement.ErrInvalidMovement):
		response.BadRequest(c, err.Error())
	case errors.Is(err, movement.ErrCyclicBOM):
		response.Error(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, movement.ErrConcurrentModification), errors.Is(err, lock.ErrLockTimeout):
		response.Error(c, http.StatusConflict, err.Error())
	default:
		h.logger.Error(msg, zap.Error(err))
		response.InternalError(c)
	}
}
