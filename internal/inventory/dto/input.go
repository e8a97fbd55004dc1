package dto

type CreateItemInput struct {
	SKU          string   `json:"sku"`
	EAN          string   `json:"ean"`
	Title        string   `json:"title"`
	Quantity     int      `json:"quantity"`
	MinQuantity  int      `json:"min_quantity"`
	MaxQuantity  *int     `json:"max_quantity"`
	Location     string   `json:"location"`
	Category     string   `json:"category"`
	Supplier     string   `json:"supplier"`
	CostPrice    *float64 `json:"cost_price"`
	SellingPrice *float64 `json:"selling_price"`
	Notes        string   `json:"notes"`
	IsComposite  bool     `json:"is_composite"`
}

// UpdateItemInput replaces the metadata of an item. A nil IsComposite leaves the flag unchanged.
type UpdateItemInput struct {
	ID           string   `json:"-"`
	SKU          string   `json:"sku"`
	EAN          string   `json:"ean"`
	Title        string   `json:"title"`
	MinQuantity  int      `json:"min_quantity"`
	MaxQuantity  *int     `json:"max_quantity"`
	Location     string   `json:"location"`
	Category     string   `json:"category"`
	Supplier     string   `json:"supplier"`
	CostPrice    *float64 `json:"cost_price"`
	SellingPrice *float64 `json:"selling_price"`
	Notes        string   `json:"notes"`
	IsComposite  *bool    `json:"is_composite"`
}
