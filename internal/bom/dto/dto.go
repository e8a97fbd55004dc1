package dto

// Composite groups the components of one composite item.
type Composite struct {
	MainSKUID  string               `json:"main_sku_id"`
	MainSKU    string               `json:"main_sku"`
	MainTitle  string               `json:"main_title"`
	Components []CompositeComponent `json:"components"`
}

type CompositeComponent struct {
	EdgeID          string `json:"edge_id"`
	ComponentSKUID  string `json:"component_sku_id"`
	ComponentSKU    string `json:"component_sku"`
	ComponentTitle  string `json:"component_title"`
	QuantityPerUnit int    `json:"quantity_per_unit"`
}
