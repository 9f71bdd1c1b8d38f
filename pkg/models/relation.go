package models

import (
	"time"

	"github.com/multistore/variants/pkg/database"
)

// RenderContext distinguishes single-product-page rendering from
// listing-page (archive) rendering. Archive context restricts output to
// groups flagged display_on_list.
type RenderContext string

const (
	RenderContextSingle  RenderContext = "single"
	RenderContextArchive RenderContext = "archive"
)

func (c RenderContext) Valid() bool {
	return c == RenderContextSingle || c == RenderContextArchive
}

// Relation is one directed edge of the product graph. Edges are stored by SKU
// (the durable cross-site identity), not by product id, so they survive the
// per-site duplication of the catalog. Every logical link exists as two rows,
// one per direction.
type Relation struct {
	ID                string     `json:"id" db:"id"`
	TenantID          string     `json:"tenant_id" db:"tenant_id"`
	ProductSKU        string     `json:"product_sku" db:"product_sku"`
	RelatedProductSKU string     `json:"related_product_sku" db:"related_product_sku"`
	GroupID           string     `json:"group_id" db:"group_id"`
	SettingsID        *string    `json:"settings_id,omitempty" db:"settings_id"`
	SortOrder         int        `json:"sort_order" db:"sort_order"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// RelationRow is a relation joined with its group and settings metadata, the
// shape the aggregation queries return.
type RelationRow struct {
	Relation
	GroupName           string                           `json:"group_name" db:"group_name"`
	AttributeID         *int64                           `json:"attribute_id,omitempty" db:"attribute_id"`
	DisplayOnList       bool                             `json:"display_on_list" db:"display_on_list"`
	DisplayStyleSingle  DisplayStyle                     `json:"display_style_single" db:"display_style_single"`
	DisplayStyleArchive DisplayStyle                     `json:"display_style_archive" db:"display_style_archive"`
	GroupSortOrder      int                              `json:"group_sort_order" db:"group_sort_order"`
	Settings            database.JSONB[*SettingsPayload] `json:"settings" db:"settings"`
}

// SubmittedRelation is one row of the admin save form: the target the edit
// screen's product should link to within a group. RelationID is set for rows
// the form loaded from storage and empty for rows the admin just added.
type SubmittedRelation struct {
	GroupID    string           `json:"group_id" validate:"required"`
	RelationID *string          `json:"relation_id,omitempty"`
	TargetSKU  string           `json:"target_sku" validate:"required"`
	SortOrder  int              `json:"sort_order"`
	Settings   *SettingsPayload `json:"settings,omitempty"`
}

// SaveRelationsRequest is the request body for saving a product's relation
// set. Reconcile overrides the RECONCILE_STALE_EDGES config for one request.
type SaveRelationsRequest struct {
	Relations []SubmittedRelation `json:"relations" validate:"dive"`
	Reconcile *bool               `json:"reconcile,omitempty"`
}

// SaveRelationsResponse reports what a save changed.
type SaveRelationsResponse struct {
	ProductSKU string   `json:"product_sku"`
	Created    int      `json:"created"`
	Updated    int      `json:"updated"`
	Removed    int      `json:"removed"`
	Touched    []string `json:"touched_skus"`
}

// ResolvedRelation is a stored edge with its target translated to the
// current site's product id, ready for rendering.
type ResolvedRelation struct {
	RelationID      string           `json:"relation_id"`
	TargetSKU       string           `json:"target_sku"`
	TargetProductID int64            `json:"target_product_id"`
	SortOrder       int              `json:"sort_order"`
	Settings        *SettingsPayload `json:"settings,omitempty"`
}

// RelationGroup is one group's worth of a product's resolved relations.
type RelationGroup struct {
	GroupID             string             `json:"group_id"`
	GroupName           string             `json:"group_name"`
	AttributeID         *int64             `json:"attribute_id,omitempty"`
	DisplayOnList       bool               `json:"display_on_list"`
	DisplayStyleSingle  DisplayStyle       `json:"display_style_single"`
	DisplayStyleArchive DisplayStyle       `json:"display_style_archive"`
	SortOrder           int                `json:"sort_order"`
	Relations           []ResolvedRelation `json:"relations"`
}

// ProductRelationsResponse is the read-side payload for one product.
type ProductRelationsResponse struct {
	ProductID  int64           `json:"product_id"`
	ProductSKU string          `json:"product_sku"`
	Context    RenderContext   `json:"context"`
	Groups     []RelationGroup `json:"groups"`
}
