package dto

type AddEdgeInput struct {
	MainSKUID       string `json:"mainSkuId"`
	ComponentSKUID  string `json:"componentSkuId"`
	QuantityPerUnit int    `json:"quantityPerUnit"`
}

type ComponentInput struct {
	ComponentSKUID  string `json:"componentSkuId"`
	QuantityPerUnit int    `json:"quantityPerUnit"`
}

type ReplaceEdgesInput struct {
	MainSKUID  string           `json:"-"`
	Components []ComponentInput `json:"components"`
}
