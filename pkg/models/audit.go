package models

// AuditIssueType classifies a consistency finding.
type AuditIssueType string

const (
	// AuditMissingReverse is a directed edge whose mirror does not exist.
	AuditMissingReverse AuditIssueType = "missing_reverse"
	// AuditDivergentSettings is a (group, target) whose edges reference more
	// than one settings row, or a mix of a settings row and none.
	AuditDivergentSettings AuditIssueType = "divergent_settings"
	// AuditOrphanedSettings is a settings row no live edge references.
	AuditOrphanedSettings AuditIssueType = "orphaned_settings"
)

// AuditIssue is one consistency finding.
type AuditIssue struct {
	Type              AuditIssueType `json:"type"`
	GroupID           string         `json:"group_id,omitempty"`
	ProductSKU        string         `json:"product_sku,omitempty"`
	RelatedProductSKU string         `json:"related_product_sku,omitempty"`
	SettingsID        string         `json:"settings_id,omitempty"`
}

// AuditReport is the result of one consistency run.
type AuditReport struct {
	TenantID     string       `json:"tenant_id"`
	EdgesChecked int          `json:"edges_checked"`
	Issues       []AuditIssue `json:"issues"`
	Repaired     int          `json:"repaired"`
}
