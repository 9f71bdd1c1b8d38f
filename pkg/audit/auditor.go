package audit

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/multistore/variants/internal/repositories/relation"
	"github.com/multistore/variants/pkg/models"
	"github.com/multistore/variants/pkg/tracing"
)

// RelationStore is the edge surface the auditor needs.
type RelationStore interface {
	ListAll(ctx context.Context, tenantID string) ([]models.Relation, error)
	EnsureReverse(ctx context.Context, tenantID string, edge relation.UpsertEdge) (string, error)
	RepointSettings(ctx context.Context, tenantID string, groupID string, targetSKU string, settingsID string) (int64, error)
}

// SettingsStore is the settings surface the auditor needs.
type SettingsStore interface {
	ListOrphaned(ctx context.Context, tenantID string) ([]string, error)
	DeleteOrphaned(ctx context.Context, tenantID string) (int64, error)
}

// Auditor checks the relation graph's invariants: every edge mirrored, one
// settings row per (group, target), no unreferenced settings. These held by
// construction only once writes became transactional; data written before
// that, or by out-of-band imports, can still violate them.
type Auditor struct {
	logger    ectologger.Logger
	relations RelationStore
	settings  SettingsStore
}

// NewAuditor creates the consistency auditor.
func NewAuditor(logger ectologger.Logger, relations RelationStore, settings SettingsStore) *Auditor {
	return &Auditor{
		logger:    logger,
		relations: relations,
		settings:  settings,
	}
}

// Run checks one tenant's graph and reports every violation found. With
// repair set it also fixes them: missing mirrors are created, divergent
// settings are repointed to the oldest edge's row, orphaned settings rows are
// deleted.
func (a *Auditor) Run(ctx context.Context, tenantID string, repair bool) (*models.AuditReport, error) {
	ctx, span := tracing.StartSpan(ctx, "audit.Auditor.Run")
	defer span.End()

	edges, err := a.relations.ListAll(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	report := &models.AuditReport{
		TenantID:     tenantID,
		EdgesChecked: len(edges),
		Issues:       []models.AuditIssue{},
	}

	if err := a.checkMirrors(ctx, tenantID, edges, repair, report); err != nil {
		return nil, err
	}
	if err := a.checkSettings(ctx, tenantID, edges, repair, report); err != nil {
		return nil, err
	}
	if err := a.checkOrphans(ctx, tenantID, repair, report); err != nil {
		return nil, err
	}

	a.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"edges":     report.EdgesChecked,
		"issues":    len(report.Issues),
		"repaired":  report.Repaired,
	}).Info("relation audit complete")

	return report, nil
}

type edgeKey struct {
	groupID string
	from    string
	to      string
}

// checkMirrors finds directed edges whose reverse is missing.
func (a *Auditor) checkMirrors(ctx context.Context, tenantID string, edges []models.Relation, repair bool, report *models.AuditReport) error {
	index := make(map[edgeKey]models.Relation, len(edges))
	settingsFor := settingsByTarget(edges)
	for _, e := range edges {
		index[edgeKey{groupID: e.GroupID, from: e.ProductSKU, to: e.RelatedProductSKU}] = e
	}

	for _, e := range edges {
		reverse := edgeKey{groupID: e.GroupID, from: e.RelatedProductSKU, to: e.ProductSKU}
		if _, ok := index[reverse]; ok {
			continue
		}

		report.Issues = append(report.Issues, models.AuditIssue{
			Type:              models.AuditMissingReverse,
			GroupID:           e.GroupID,
			ProductSKU:        e.ProductSKU,
			RelatedProductSKU: e.RelatedProductSKU,
		})

		if !repair {
			continue
		}

		// the mirror renders the original source, so it gets that product's
		// shared settings row when one exists
		var settingsID *string
		if id, ok := settingsFor[targetKey{groupID: e.GroupID, target: e.ProductSKU}]; ok {
			settingsID = &id
		}

		if _, err := a.relations.EnsureReverse(ctx, tenantID, relation.UpsertEdge{
			ProductSKU:        e.RelatedProductSKU,
			RelatedProductSKU: e.ProductSKU,
			GroupID:           e.GroupID,
			SettingsID:        settingsID,
			SortOrder:         e.SortOrder,
		}); err != nil {
			return err
		}
		report.Repaired++
	}

	return nil
}

type targetKey struct {
	groupID string
	target  string
}

// settingsByTarget picks the canonical settings row per (group, target): the
// one referenced by the oldest edge.
func settingsByTarget(edges []models.Relation) map[targetKey]string {
	sorted := make([]models.Relation, len(edges))
	copy(sorted, edges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	canonical := map[targetKey]string{}
	for _, e := range sorted {
		if e.SettingsID == nil {
			continue
		}
		key := targetKey{groupID: e.GroupID, target: e.RelatedProductSKU}
		if _, ok := canonical[key]; !ok {
			canonical[key] = *e.SettingsID
		}
	}
	return canonical
}

// checkSettings finds (group, target) pairs whose edges disagree about the
// settings row.
func (a *Auditor) checkSettings(ctx context.Context, tenantID string, edges []models.Relation, repair bool, report *models.AuditReport) error {
	canonical := settingsByTarget(edges)

	flagged := map[targetKey]bool{}
	for _, e := range edges {
		key := targetKey{groupID: e.GroupID, target: e.RelatedProductSKU}
		want, ok := canonical[key]
		if !ok {
			continue // no edge for this target has settings at all
		}
		if e.SettingsID != nil && *e.SettingsID == want {
			continue
		}
		if flagged[key] {
			continue
		}
		flagged[key] = true

		report.Issues = append(report.Issues, models.AuditIssue{
			Type:              models.AuditDivergentSettings,
			GroupID:           e.GroupID,
			RelatedProductSKU: e.RelatedProductSKU,
			SettingsID:        want,
		})

		if !repair {
			continue
		}

		if _, err := a.relations.RepointSettings(ctx, tenantID, e.GroupID, e.RelatedProductSKU, want); err != nil {
			return err
		}
		report.Repaired++
	}

	return nil
}

// checkOrphans finds settings rows no live edge references.
func (a *Auditor) checkOrphans(ctx context.Context, tenantID string, repair bool, report *models.AuditReport) error {
	orphaned, err := a.settings.ListOrphaned(ctx, tenantID)
	if err != nil {
		return err
	}

	for _, id := range orphaned {
		report.Issues = append(report.Issues, models.AuditIssue{
			Type:       models.AuditOrphanedSettings,
			SettingsID: id,
		})
	}

	if repair && len(orphaned) > 0 {
		deleted, err := a.settings.DeleteOrphaned(ctx, tenantID)
		if err != nil {
			return err
		}
		report.Repaired += int(deleted)
	}

	return nil
}
