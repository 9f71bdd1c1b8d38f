package models

import "time"

// DisplayStyle controls how a relation option renders on a page.
type DisplayStyle string

const (
	DisplayStyleImageProduct DisplayStyle = "image_product"
	DisplayStyleImageCustom  DisplayStyle = "image_custom"
	DisplayStyleLabelOnly    DisplayStyle = "label_only"
)

// Group is a named category of product relations (e.g. "Color"), optionally
// bound to a catalog attribute. Single and archive pages each carry their own
// display style; DisplayOnList gates whether the group renders on listings.
type Group struct {
	ID                  string       `json:"id" db:"id"`
	TenantID            string       `json:"tenant_id" db:"tenant_id"`
	Name                string       `json:"name" db:"name" validate:"required"`
	AttributeID         *int64       `json:"attribute_id,omitempty" db:"attribute_id"`
	DisplayOnList       bool         `json:"display_on_list" db:"display_on_list"`
	DisplayStyleSingle  DisplayStyle `json:"display_style_single" db:"display_style_single"`
	DisplayStyleArchive DisplayStyle `json:"display_style_archive" db:"display_style_archive"`
	SortOrder           int          `json:"sort_order" db:"sort_order"`
	CreatedAt           time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at" db:"updated_at"`
	DeletedAt           *time.Time   `json:"deleted_at,omitempty" db:"deleted_at"`
}

// CreateGroupRequest is the request body for creating a relation group
type CreateGroupRequest struct {
	Name                string       `json:"name" validate:"required"`
	AttributeID         *int64       `json:"attribute_id,omitempty"`
	DisplayOnList       bool         `json:"display_on_list"`
	DisplayStyleSingle  DisplayStyle `json:"display_style_single" validate:"required,oneof=image_product image_custom label_only"`
	DisplayStyleArchive DisplayStyle `json:"display_style_archive" validate:"required,oneof=image_product image_custom label_only"`
	SortOrder           int          `json:"sort_order"`
}

// UpdateGroupRequest is the request body for updating a relation group
type UpdateGroupRequest struct {
	Name                *string       `json:"name,omitempty"`
	AttributeID         *int64        `json:"attribute_id,omitempty"`
	DisplayOnList       *bool         `json:"display_on_list,omitempty"`
	DisplayStyleSingle  *DisplayStyle `json:"display_style_single,omitempty" validate:"omitempty,oneof=image_product image_custom label_only"`
	DisplayStyleArchive *DisplayStyle `json:"display_style_archive,omitempty" validate:"omitempty,oneof=image_product image_custom label_only"`
	SortOrder           *int          `json:"sort_order,omitempty"`
}

// GroupResponse is the API response for group operations
type GroupResponse struct {
	Group
}

// GroupListResponse is the API response for listing groups
type GroupListResponse struct {
	Items      []Group `json:"items"`
	TotalCount int     `json:"total_count"`
	Page       int     `json:"page"`
	PageSize   int     `json:"page_size"`
}
