package model

import "time"

// BOMEdge links a composite (main) item to one component it consumes.
type BOMEdge struct {
	ID              string    `db:"id" json:"id"`
	MainSKUID       string    `db:"main_sku_id" json:"main_sku_id"`
	ComponentSKUID  string    `db:"component_sku_id" json:"component_sku_id"`
	QuantityPerUnit int       `db:"quantity_per_unit" json:"quantity_per_unit"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// BOMEdgeView is an edge joined with its component for display.
type BOMEdgeView struct {
	BOMEdge
	ComponentSKU         string `db:"component_sku" json:"component_sku"`
	ComponentTitle       string `db:"component_title" json:"component_title"`
	ComponentQuantity    int    `db:"component_quantity" json:"component_quantity"`
	ComponentIsComposite bool   `db:"component_is_composite" json:"component_is_composite"`
}

// CompositeRow is one row of the flat composite listing, grouped later by main item.
type CompositeRow struct {
	MainSKUID       string `db:"main_sku_id"`
	MainSKU         string `db:"main_sku"`
	MainTitle       string `db:"main_title"`
	EdgeID          string `db:"edge_id"`
	ComponentSKUID  string `db:"component_sku_id"`
	ComponentSKU    string `db:"component_sku"`
	ComponentTitle  string `db:"component_title"`
	QuantityPerUnit int    `db:"quantity_per_unit"`
}
