package movement

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("stock item not found")
	ErrInvalidMovement        = errors.New("invalid movement")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrCyclicBOM              = errors.New("cyclic bill of materials")
	ErrConcurrentModification = errors.New("stock changed concurrently")
)

// Shortage describes one item that cannot cover its demand. Required is the total demand the
// call puts on the item across every cascade path.
type Shortage struct {
	ItemID    string `json:"itemId"`
	SKU       string `json:"sku"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
	Missing   int    `json:"missing"`
}

func NewShortage(itemID, sku string, required, available int) Shortage {
	return Shortage{
		ItemID:    itemID,
		SKU:       sku,
		Required:  required,
		Available: available,
		Missing:   required - available,
	}
}

// InsufficientStockError names the first short item in cascade order and lists every other
// shortage found while validating the same call.
type InsufficientStockError struct {
	Shortage
	Shortages []Shortage `json:"shortages"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: required %d, available %d", e.SKU, e.Required, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}
