package dto

import "github.com/fekuna/omnipos-stock-service/internal/model"

const DefaultLimit = 20

type ItemFilters struct {
	Search    string `form:"search" json:"search"`
	Category  string `form:"category" json:"category"`
	LowStock  bool   `form:"low_stock" json:"low_stock"`
	NoStock   bool   `form:"noStock" json:"no_stock"`
	WithStock bool   `form:"withStock" json:"with_stock"`
	Limit     int    `form:"limit" json:"limit"`
	Offset    int    `form:"offset" json:"offset"`
}

// Normalize applies the default page size and clamps negative paging values.
func (f *ItemFilters) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// QuantityFiltered reports whether the filters depend on on-hand quantities.
func (f *ItemFilters) QuantityFiltered() bool {
	return f.LowStock || f.NoStock || f.WithStock
}

type ItemList struct {
	Items         []model.StockItem `json:"items"`
	Total         int               `json:"total"`
	TotalFiltered int               `json:"total_filtered"`
}
