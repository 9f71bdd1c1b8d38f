package models

import (
	"fmt"
	"time"

	"github.com/multistore/variants/pkg/database"
)

// LabelSource selects where a relation option's label comes from.
type LabelSource string

const (
	LabelSourceCustom    LabelSource = "custom"
	LabelSourceAttribute LabelSource = "attribute"
)

// SettingsPayload is the per-target display override. All edges pointing at
// the same target within a group share one settings row, so "what this
// product's tile looks like" is a single object, not per-edge state.
type SettingsPayload struct {
	LabelSource   LabelSource `json:"label_source"`
	CustomLabel   string      `json:"custom_label,omitempty"`
	CustomImageID *int64      `json:"custom_image_id,omitempty"`
}

// Validate checks the payload at the repository boundary, replacing the
// legacy render-time duck typing of the settings blob.
func (p *SettingsPayload) Validate() error {
	switch p.LabelSource {
	case LabelSourceCustom:
		if p.CustomLabel == "" {
			return fmt.Errorf("custom_label is required when label_source is %q", LabelSourceCustom)
		}
	case LabelSourceAttribute:
		if p.CustomLabel != "" {
			return fmt.Errorf("custom_label must be empty when label_source is %q", LabelSourceAttribute)
		}
	default:
		return fmt.Errorf("label_source must be one of %q, %q", LabelSourceCustom, LabelSourceAttribute)
	}
	return nil
}

// Settings is a stored settings row. The payload lives in a jsonb column.
type Settings struct {
	ID        string                           `json:"id" db:"id"`
	TenantID  string                           `json:"tenant_id" db:"tenant_id"`
	Settings  database.JSONB[*SettingsPayload] `json:"settings" db:"settings"`
	CreatedAt time.Time                        `json:"created_at" db:"created_at"`
	UpdatedAt time.Time                        `json:"updated_at" db:"updated_at"`
}
