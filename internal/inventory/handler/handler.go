package handler

import (
	"errors"
	"net/http"

	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/logger"
	"github.com/fekuna/omnipos-stock-service/internal/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type InventoryHandler struct {
	uc     inventory.UseCase
	logger logger.ZapLogger
}

func NewInventoryHandler(uc inventory.UseCase, log logger.ZapLogger) *InventoryHandler {
	return &InventoryHandler{
		uc:     uc,
		logger: log,
	}
}

func (h *InventoryHandler) MapRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/inventory")
	g.GET("", h.ListItems)
	g.POST("", h.CreateItem)
	g.GET("/stats", h.Stats)
	g.GET("/report/low-stock", h.LowStockReport)
	g.GET("/report/out-of-stock", h.OutOfStockReport)
	g.GET("/sku/:sku", h.GetItemBySKU)
	g.GET("/:id", h.GetItem)
	g.PUT("/:id", h.UpdateItem)
	g.DELETE("/:id", h.DeleteItem)
}

func (h *InventoryHandler) ListItems(c *gin.Context) {
	var filters dto.ItemFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.BadRequest(c, "invalid query: "+err.Error())
		return
	}

	list, err := h.uc.ListItems(c.Request.Context(), &filters)
	if err != nil {
		h.fail(c, "failed to list items", err)
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

func (h *InventoryHandler) CreateItem(c *gin.Context) {
	var input dto.CreateItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.BadRequest(c, "invalid body: "+err.Error())
		return
	}

	item, err := h.uc.CreateItem(c.Request.Context(), &input)
	if err != nil {
		h.fail(c, "failed to create item", err)
		return
	}
	response.Created(c, item)
}

func (h *InventoryHandler) GetItem(c *gin.Context) {
	item, err := h.uc.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "failed to get item", err)
		return
	}
	response.Success(c, item)
}

func (h *InventoryHandler) GetItemBySKU(c *gin.Context) {
	item, err := h.uc.GetItemBySKU(c.Request.Context(), c.Param("sku"))
	if err != nil {
		h.fail(c, "failed to get item by sku", err)
		return
	}
	response.Success(c, item)
}

func (h *InventoryHandler) UpdateItem(c *gin.Context) {
	var input dto.UpdateItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.BadRequest(c, "invalid body: "+err.Error())
		return
	}
	input.ID = c.Param("id")

	item, err := h.uc.UpdateItem(c.Request.Context(), &input)
	if err != nil {
		h.fail(c, "failed to update item", err)
		return
	}
	response.Success(c, item)
}

func (h *InventoryHandler) DeleteItem(c *gin.Context) {
	if err := h.uc.DeleteItem(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "failed to delete item", err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

func (h *InventoryHandler) Stats(c *gin.Context) {
	stats, err := h.uc.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to compute stats", err)
		return
	}
	response.Success(c, stats)
}

func (h *InventoryHandler) LowStockReport(c *gin.Context) {
	items, err := h.uc.LowStockReport(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to build low stock report", err)
		return
	}
	response.Success(c, items)
}

func (h *InventoryHandler) OutOfStockReport(c *gin.Context) {
	items, err := h.uc.OutOfStockReport(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to build out of stock report", err)
		return
	}
	response.Success(c, items)
}

func (h *InventoryHandler) fail(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, inventory.ErrInvalidItem):
		response.BadRequest(c, err.Error())
	case errors.Is(err, inventory.ErrConflict):
		response.Error(c, http.StatusConflict, err.Error())
	default:
		h.logger.Error(msg, zap.Error(err))
		response.InternalError(c)
	}
}
