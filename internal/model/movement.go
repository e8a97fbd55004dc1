package model

import "time"

type MovementKind string

const (
	MovementIn         MovementKind = "in"
	MovementOut        MovementKind = "out"
	MovementAdjustment MovementKind = "adjustment"
)

func (k MovementKind) Valid() bool {
	switch k {
	case MovementIn, MovementOut, MovementAdjustment:
		return true
	}
	return false
}

// StockMovement is one append-only ledger entry.
type StockMovement struct {
	ID               string       `db:"id" json:"id"`
	ItemID           string       `db:"item_id" json:"item_id"`
	MovementType     MovementKind `db:"movement_type" json:"movement_type"`
	Quantity         int          `db:"quantity" json:"quantity"`
	PreviousQuantity int          `db:"previous_quantity" json:"previous_quantity"`
	NewQuantity      int          `db:"new_quantity" json:"new_quantity"`
	Reason           *string      `db:"reason" json:"reason"`
	ActorID          *string      `db:"actor_id" json:"actor_id"`
	ParentMovementID *string      `db:"parent_movement_id" json:"parent_movement_id"`
	IsCascade        bool         `db:"is_cascade" json:"is_cascade"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
}

// StockMovementView is a ledger entry joined with the item it touched.
type StockMovementView struct {
	StockMovement
	ItemSKU   *string `db:"item_sku" json:"item_sku"`
	ItemTitle *string `db:"item_title" json:"item_title"`
}
