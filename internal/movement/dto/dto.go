package dto

import "github.com/fekuna/omnipos-stock-service/internal/model"

type MovementResult struct {
	MovementID       string             `json:"movementId"`
	ItemID           string             `json:"itemId"`
	SKU              string             `json:"sku"`
	Kind             model.MovementKind `json:"kind"`
	Quantity         int                `json:"quantity"`
	PreviousQuantity int                `json:"previousQuantity"`
	NewQuantity      int                `json:"newQuantity"`
	Cascade          []CascadeEntry     `json:"cascade"`
}

// CascadeEntry is one leaf write performed on behalf of a composite movement.
type CascadeEntry struct {
	MovementID       string `json:"movementId"`
	ItemID           string `json:"itemId"`
	SKU              string `json:"sku"`
	Quantity         int    `json:"quantity"`
	PreviousQuantity int    `json:"previousQuantity"`
	NewQuantity      int    `json:"newQuantity"`
}

type CompositeStock struct {
	ItemID           string               `json:"itemId"`
	SKU              string               `json:"sku"`
	IsComposite      bool                 `json:"isComposite"`
	MaxAssemblable   *int                 `json:"maxAssemblable"`
	DirectComponents []ComponentAvailable `json:"directComponents"`
}

type ComponentAvailable struct {
	ComponentID string `json:"componentId"`
	SKU         string `json:"sku"`
	Title       string `json:"title"`
	Required    int    `json:"required"`
	Available   int    `json:"available"`
}

type MovementList struct {
	Items         []model.StockMovementView `json:"items"`
	Total         int                       `json:"total"`
	TotalFiltered int                       `json:"total_filtered"`
}
