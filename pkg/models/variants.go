package models

// VariantOption is one selectable option in a variant selector: a related
// product's display data plus the adjacency needed for client-side
// filtering. Related maps group id to the product ids reachable from THIS
// option's own edges, so hovering an option can narrow the other groups
// without a network round-trip.
type VariantOption struct {
	ProductID   int64              `json:"product_id"`
	SKU         string             `json:"sku"`
	Title       string             `json:"title"`
	URL         string             `json:"url"`
	ImageURL    string             `json:"image_url"`
	Price       float64            `json:"price"`
	SalePrice   *float64           `json:"sale_price,omitempty"`
	OnSale      bool               `json:"on_sale"`
	LowestPrice *float64           `json:"lowest_price,omitempty"`
	Label       string             `json:"label"`
	SortOrder   int                `json:"sort_order"`
	Settings    *SettingsPayload   `json:"settings,omitempty"`
	Related     map[string][]int64 `json:"related"`
}

// VariantGroup is one group's block of the variant map.
type VariantGroup struct {
	GroupID       string                    `json:"group_id"`
	GroupName     string                    `json:"group_name"`
	AttributeID   *int64                    `json:"attribute_id,omitempty"`
	DisplayStyle  DisplayStyle              `json:"display_style"`
	DisplayOnList bool                      `json:"display_on_list"`
	SortOrder     int                       `json:"sort_order"`
	Relations     map[string]*VariantOption `json:"relations"` // keyed by target SKU
}

// VariantMap is the nested structure templates render from: group id ->
// group block -> options keyed by target SKU.
type VariantMap map[string]*VariantGroup

// VariantMapResponse is the API response for a single product's variant map.
type VariantMapResponse struct {
	ProductID int64         `json:"product_id"`
	Context   RenderContext `json:"context"`
	Groups    VariantMap    `json:"groups"`
}

// ArchiveVariantsRequest asks for variant maps for the products visible on a
// listing page. Options are restricted to the visible set so swatches never
// point at products the current filter/pagination excluded.
type ArchiveVariantsRequest struct {
	ProductIDs []int64 `json:"product_ids" validate:"required,min=1"`
}

// ArchiveVariantsResponse maps each requested product id to its variant map.
type ArchiveVariantsResponse struct {
	Items map[int64]VariantMap `json:"items"`
}
