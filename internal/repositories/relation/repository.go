package relation

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/multistore/variants/pkg/database"
	"github.com/multistore/variants/pkg/models"
	"github.com/multistore/variants/pkg/tracing"
)

var relationIDNamespace = uuid.MustParse("3f8a1c26-5b74-4e19-9c02-8e41d7b6a590")

// ComputeDeterministicID returns the edge ID used for upserts. An edge is
// unique per (tenant_id, group_id, product_sku, related_product_sku), so the
// same logical edge always lands on the same row and a repeated save can
// never duplicate it.
func ComputeDeterministicID(tenantID, groupID, productSKU, relatedProductSKU string) string {
	return uuid.NewSHA1(relationIDNamespace, []byte(fmt.Sprintf("%s|%s|%s|%s",
		tenantID, groupID, productSKU, relatedProductSKU))).String()
}

// Repository handles product relation edge persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new relation repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the backing store so services can own a transaction spanning
// several repository calls.
func (r *Repository) DB() database.DB {
	return r.db
}

// execer returns the ctx-carried transaction when one is open, so writes
// issued during a save stay inside the save's transaction.
func (r *Repository) execer(ctx context.Context) database.Execer {
	if tx, ok := database.TxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// allColumns is the standard column list for SELECT queries
const allColumns = `id, tenant_id, product_sku, related_product_sku, group_id, settings_id, sort_order, created_at, updated_at, deleted_at`

// joinedColumns is the column list for aggregation queries joining groups and settings
const joinedColumns = `pr.id, pr.tenant_id, pr.product_sku, pr.related_product_sku, pr.group_id, pr.settings_id, pr.sort_order,
	pr.created_at, pr.updated_at, pr.deleted_at,
	rg.name AS group_name, rg.attribute_id, rg.display_on_list, rg.display_style_single, rg.display_style_archive,
	rg.sort_order AS group_sort_order,
	COALESCE(rs.settings, 'null'::jsonb) AS settings`

// UpsertEdge describes one directed edge write.
type UpsertEdge struct {
	ProductSKU        string
	RelatedProductSKU string
	GroupID           string
	SettingsID        *string
	SortOrder         int
}

// Upsert creates or updates a directed edge. The deterministic ID makes this
// idempotent: a conflicting insert updates sort order and settings in place
// and revives a soft-deleted row.
func (r *Repository) Upsert(ctx context.Context, tenantID string, edge UpsertEdge) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "relation.Repository.Upsert")
	defer span.End()

	id := ComputeDeterministicID(tenantID, edge.GroupID, edge.ProductSKU, edge.RelatedProductSKU)
	now := time.Now().UTC()

	query := `
		INSERT INTO product_relations (
			id, tenant_id, product_sku, related_product_sku, group_id, settings_id, sort_order, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id)
		DO UPDATE SET
			settings_id = EXCLUDED.settings_id,
			sort_order = EXCLUDED.sort_order,
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL
	`

	if _, err := r.execer(ctx).ExecContext(ctx, query,
		id, tenantID, edge.ProductSKU, edge.RelatedProductSKU, edge.GroupID, edge.SettingsID, edge.SortOrder, now, now,
	); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":           tenantID,
			"product_sku":         edge.ProductSKU,
			"related_product_sku": edge.RelatedProductSKU,
			"group_id":            edge.GroupID,
		}).Error("Failed to upsert relation edge")
		return "", httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to upsert relation edge: %s", err.Error())
	}

	return id, nil
}

// EnsureReverse creates the mirror edge when it is missing. An existing
// reverse edge keeps its own sort order (ordering belongs to the reverse
// side's edit screen) and only gains a settings reference when it has none.
func (r *Repository) EnsureReverse(ctx context.Context, tenantID string, edge UpsertEdge) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "relation.Repository.EnsureReverse")
	defer span.End()

	id := ComputeDeterministicID(tenantID, edge.GroupID, edge.ProductSKU, edge.RelatedProductSKU)
	now := time.Now().UTC()

	query := `
		INSERT INTO product_relations (
			id, tenant_id, product_sku, related_product_sku, group_id, settings_id, sort_order, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id)
		DO UPDATE SET
			settings_id = COALESCE(product_relations.settings_id, EXCLUDED.settings_id),
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL
	`

	if _, err := r.execer(ctx).ExecContext(ctx, query,
		id, tenantID, edge.ProductSKU, edge.RelatedProductSKU, edge.GroupID, edge.SettingsID, edge.SortOrder, now, now,
	); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":           tenantID,
			"product_sku":         edge.ProductSKU,
			"related_product_sku": edge.RelatedProductSKU,
			"group_id":            edge.GroupID,
		}).Error("Failed to ensure reverse relation edge")
		return "", httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to ensure reverse relation edge: %s", err.Error())
	}

	return id, nil
}

// GetByID retrieves an edge by ID
func (r *Repository) GetByID(ctx context.Context, tenantID string, id string) (*models.Relation, error) {
	ctx, span := tracing.StartSpan(ctx, "relation.Repository.GetByID")
	defer span.End()

	query := fmt.Sprintf(`SELECT %s FROM product_relations WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`, allColumns)

	var rel models.Relation
	if err := r.execer(ctx).GetContext(ctx, &rel, query, id, tenantID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get relation edge")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get relation edge: %s", err.Error())
	}

	return &rel, nil
}

// ListForward returns all live edges whose source is the given SKU, ordered
// by stored sort order.
func (r *Repository) ListForward(ctx context.Context, tenantID string, productSKU string) ([]models.Relation, error) {
	ctx, span := tracing.StartSpan(ctx, "relation.Repository.ListForward")
	defer span.End()

	query := fmt.Sprintf(`
		SELECT %s FROM product_relations
		WHERE tenant_id = $1
		  AND product_sku = $2
		  AND deleted_at IS NULL
		ORDER BY group_id, sort_order, created_at
	`, allColumns)

	relations := []models.Relation{}
	if err := r.execer(ctx).SelectContext(ctx, &relations, query, tenantID, productSKU); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":   tenantID,
			"product_sku": productSKU,
		}).Error("Failed to list forward relation edges")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list relation edges: %s", err.Error())
	}

	return relations, nil
}

// ListBySKUs returns edges for a set of source SKUs joined with their group
// and settings metadata, in one query. This is the bulk read behind both the
// per-product read path and the listing-page aggregation, so listing pages
// never issue one query per visible product. When archiveOnly is set, only
// groups flagged display_on_list are returned.
func (r *Repository) ListBySKUs(ctx context.Context, tenantID string, skus []string, archiveOnly bool) ([]models.RelationRow, error) {
	ctx, span := tracing.StartSpan(ctx, "relation.Repository.ListBySKUs")
	defer span.End()

	if len(skus) == 0 {
		return []models.RelationRow{}, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(joinedColumns)
	sb.From("product_relations pr")
	sb.Join("relation_groups rg", "pr.group_id = rg.id")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "relation_settings rs", "pr.settings_id = rs.id")
	conds := []string{
		sb.Equal("pr.tenant_id", tenantID),
		sb.In("pr.product_sku", sqlbuilder.Flatten(skus)...),
		sb.IsNull("pr.deleted_at"),
		sb.IsNull("rg.deleted_at"),
	}
	if archiveOnly {
		conds = append(conds, sb.Equal("rg.display_on_list", true))
	}
	sb.Where(conds...)
	sb.OrderBy("rg.sort_order", "pr.product_sku", "pr.sort_order", "pr.created_at")

	query, args := sb.Build()

	rows := []models.RelationRow{}
	if err := r.execer(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
			"skus":      len(skus),
		}).Error("Failed to list relation rows by SKUs")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list relation rows: %s", err.Error())
	}

	return rows, nil
}

// FindSettingsIDForTarget returns the settings id any live edge pointing at
// the target within the group already carries. This is the sharing lookup:
// "what this target's tile looks like" is one object per (group, target),
// reused by every edge that renders it.
func (r *Repository) FindSettingsIDForTarget(ctx context.Context, tenantID string, groupID string, targetSKU string) (*string, error) {
	ctx, span := tracing.StartSpan(ctx, "relation.Repository.FindSettingsIDForTarget")
	defer span.End()

	query := `
		SELECT settings_id FROM product_relations
		WHERE tenant_id = $1
		  AND group_id = $2
		  AND related_product_sku = $3
		  AND settings_id IS NOT NULL
		  AND deleted_at IS NULL
		ORDER BY created_at
		LIMIT 1
	`

	var settingsID string
	if err := r.execer(ctx).GetContext(ctx, &settingsID, query, tenantID, groupID, targetSKU); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":  tenantID,
			"group_id":   groupID,
			"target_sku": targetSKU,
		}).Error("Failed to find shared settings for target")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to find shared settings: %s", err.Error())
	}

	return &settingsID, nil
}

// UpdateSortAndSettings updates an existing edge in place (drag reorder or a
// settings change on the edit screen).
func (r *Repository) UpdateSortAndSettings(ctx context.Context, tenantID string, id string, sortOrder int, settingsID *string) error {
	ctx, span := tracing.StartSpan(ctx, "relation.Repository.UpdateSortAndSettings")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("product_relations")
	sb.Set(
		sb.Assign("sort_order", sortOrder),
		sb.Assign("settings_id", settingsID),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()

	if _, err := r.execer(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
			"id":        id,
		}).Error("Failed to update relation edge")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update relation edge: %s", err.Error())
	}

	return nil
}

// RemoveBidirectional soft-deletes both directions of a logical link.
func (r *Repository) RemoveBidirectional(ctx context.Context, tenantID string, skuA, skuB string, groupID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "relation.Repository.RemoveBidirectional")
	defer span.End()

	forwardID := ComputeDeterministicID(tenantID, groupID, skuA, skuB)
	reverseID := ComputeDeterministicID(tenantID, groupID, skuB, skuA)

	query := `
		UPDATE product_relations
		SET deleted_at = $1, updated_at = $1
		WHERE tenant_id = $2
		  AND id IN ($3, $4)
		  AND deleted_at IS NULL
	`

	result, err := r.execer(ctx).ExecContext(ctx, query, time.Now().UTC(), tenantID, forwardID, reverseID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
			"sku_a":     skuA,
			"sku_b":     skuB,
			"group_id":  groupID,
		}).Error("Failed to remove relation edge pair")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to remove relation edges: %s", err.Error())
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// RepointSettings moves every live edge pointing at the target within the
// group onto the canonical settings row. Used by the consistency repair.
func (r *Repository) RepointSettings(ctx context.Context, tenantID string, groupID string, targetSKU string, settingsID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "relation.Repository.RepointSettings")
	defer span.End()

	query := `
		UPDATE product_relations
		SET settings_id = $1, updated_at = $2
		WHERE tenant_id = $3
		  AND group_id = $4
		  AND related_product_sku = $5
		  AND (settings_id IS NULL OR settings_id <> $1)
		  AND deleted_at IS NULL
	`

	result, err := r.execer(ctx).ExecContext(ctx, query, settingsID, time.Now().UTC(), tenantID, groupID, targetSKU)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":  tenantID,
			"group_id":   groupID,
			"target_sku": targetSKU,
		}).Error("Failed to repoint settings references")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to repoint settings: %s", err.Error())
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// ListAll returns every live edge for a tenant, for the consistency audit.
func (r *Repository) ListAll(ctx context.Context, tenantID string) ([]models.Relation, error) {
	ctx, span := tracing.StartSpan(ctx, "relation.Repository.ListAll")
	defer span.End()

	query := fmt.Sprintf(`
		SELECT %s FROM product_relations
		WHERE tenant_id = $1
		  AND deleted_at IS NULL
		ORDER BY group_id, product_sku, related_product_sku
	`, allColumns)

	relations := []models.Relation{}
	if err := r.execer(ctx).SelectContext(ctx, &relations, query, tenantID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list all relation edges")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list relation edges: %s", err.Error())
	}

	return relations, nil
}
