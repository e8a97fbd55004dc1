package dto

import "github.com/fekuna/omnipos-stock-service/internal/model"

// MovementInput targets an item by id, or by SKU when ItemID is empty.
type MovementInput struct {
	ItemID   string             `json:"skuId"`
	SKU      string             `json:"sku"`
	Kind     model.MovementKind `json:"kind"`
	Quantity int                `json:"quantity"`
	Reason   string             `json:"reason"`
	ActorID  string             `json:"actorId"`
}

type MovementFilters struct {
	ItemID string `form:"itemId"`
	Kind   string `form:"kind"`
	Search string `form:"search"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

func (f *MovementFilters) Normalize() {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}
