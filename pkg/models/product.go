package models

import "time"

// Product is one site's row for a logical catalog product. The same SKU
// exists once per (tenant, site) with a different numeric id; the id is only
// meaningful inside its own site context.
type Product struct {
	ID        int64      `json:"id" db:"id"`
	TenantID  string     `json:"tenant_id" db:"tenant_id"`
	SiteID    string     `json:"site_id" db:"site_id"`
	SKU       string     `json:"sku" db:"sku"`
	Name      string     `json:"name" db:"name"`
	Permalink string     `json:"permalink" db:"permalink"`
	Price     float64    `json:"price" db:"price"`
	SalePrice *float64   `json:"sale_price,omitempty" db:"sale_price"`
	OnSale    bool       `json:"on_sale" db:"on_sale"`
	ImageURL  string     `json:"image_url" db:"image_url"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// ProductSearchResponse is the API response for the admin product search
type ProductSearchResponse struct {
	Items      []Product `json:"items"`
	TotalCount int       `json:"total_count"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
}

// PricePoint is one observation from the price history log.
type PricePoint struct {
	Price      float64   `json:"price" db:"price"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
}

// PriceHistoryResponse is the API response for a product's price window:
// the raw observations plus the lowest price seen in the window.
type PriceHistoryResponse struct {
	ProductID   int64        `json:"product_id"`
	SKU         string       `json:"sku"`
	Since       time.Time    `json:"since"`
	LowestPrice *float64     `json:"lowest_price,omitempty"`
	Points      []PricePoint `json:"points"`
}
