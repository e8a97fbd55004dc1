package model

// StockItem is a node of the inventory graph. Quantity is authoritative for simple items and
// cosmetic for composites.
type StockItem struct {
	BaseModel
	SKU          string   `db:"sku" json:"sku"`
	EAN          *string  `db:"ean" json:"ean"`
	Title        string   `db:"title" json:"title"`
	Quantity     int      `db:"quantity" json:"quantity"`
	MinQuantity  int      `db:"min_quantity" json:"min_quantity"`
	MaxQuantity  *int     `db:"max_quantity" json:"max_quantity"`
	Location     *string  `db:"location" json:"location"`
	Category     *string  `db:"category" json:"category"`
	Supplier     *string  `db:"supplier" json:"supplier"`
	CostPrice    *float64 `db:"cost_price" json:"cost_price"`
	SellingPrice *float64 `db:"selling_price" json:"selling_price"`
	Notes        *string  `db:"notes" json:"notes"`
	IsComposite  bool     `db:"is_composite" json:"is_composite"`
}

type InventoryStats struct {
	TotalItems      int     `db:"total_items" json:"total_items"`
	TotalQuantity   int     `db:"total_quantity" json:"total_quantity"`
	LowStockItems   int     `db:"low_stock_items" json:"low_stock_items"`
	OutOfStockItems int     `db:"out_of_stock_items" json:"out_of_stock_items"`
	AvgQuantity     float64 `db:"avg_quantity" json:"avg_quantity"`
}
