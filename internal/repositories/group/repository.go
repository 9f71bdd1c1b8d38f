package group

import (
	"context"
	"database/sql"
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

// Repository handles relation group persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new relation group repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "relation_groups"

var columns = []string{"id", "tenant_id", "name", "attribute_id", "display_on_list", "display_style_single", "display_style_archive", "sort_order", "created_at", "updated_at", "deleted_at"}

// Create creates a new relation group
func (r *Repository) Create(ctx context.Context, tenantID string, req models.CreateGroupRequest) (*models.Group, error) {
	ctx, span := tracing.StartSpan(ctx, "group.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	id := uuid.New().String()

	styleSingle := req.DisplayStyleSingle
	if styleSingle == "" {
		styleSingle = models.DisplayStyleImageProduct
	}
	styleArchive := req.DisplayStyleArchive
	if styleArchive == "" {
		styleArchive = models.DisplayStyleImageProduct
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols("id", "tenant_id", "name", "attribute_id", "display_on_list", "display_style_single", "display_style_archive", "sort_order", "created_at", "updated_at")
	sb.Values(id, tenantID, req.Name, req.AttributeID, req.DisplayOnList, styleSingle, styleArchive, req.SortOrder, now, now)

	query, args := sb.Build()

	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"id":        id,
			"tenant_id": tenantID,
			"name":      req.Name,
		}).Error("failed to create relation group")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create relation group: %s", err.Error())
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":        id,
		"tenant_id": tenantID,
		"name":      req.Name,
	}).Info("created relation group")

	return r.GetByID(ctx, tenantID, id)
}

// GetByID gets a relation group by ID
func (r *Repository) GetByID(ctx context.Context, tenantID string, id string) (*models.Group, error) {
	ctx, span := tracing.StartSpan(ctx, "group.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()

	var g models.Group
	err := r.db.GetContext(ctx, &g, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"id":        id,
			"tenant_id": tenantID,
		}).Error("failed to get relation group by ID")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get relation group: %s", err.Error())
	}

	return &g, nil
}

// GetByName gets a relation group by name. Used to reject duplicate names on
// create.
func (r *Repository) GetByName(ctx context.Context, tenantID string, name string) (*models.Group, error) {
	ctx, span := tracing.StartSpan(ctx, "group.Repository.GetByName")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("name", name),
		sb.IsNull("deleted_at"),
	)
	sb.Limit(1)

	query, args := sb.Build()

	var g models.Group
	err := r.db.GetContext(ctx, &g, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
			"name":      name,
		}).Error("failed to get relation group by name")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get relation group: %s", err.Error())
	}

	return &g, nil
}

// List returns groups for the tenant ordered by sort_order, paged
func (r *Repository) List(ctx context.Context, tenantID string, page, pageSize int) ([]models.Group, int, error) {
	ctx, span := tracing.StartSpan(ctx, "group.Repository.List")
	defer span.End()

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From(tableName)
	countSb.Where(
		countSb.Equal("tenant_id", tenantID),
		countSb.IsNull("deleted_at"),
	)

	query, args := countSb.Build()

	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to count relation groups")
		return nil, 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list relation groups: %s", err.Error())
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("sort_order", "created_at")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args = sb.Build()

	groups := []models.Group{}
	if err := r.db.SelectContext(ctx, &groups, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list relation groups")
		return nil, 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list relation groups: %s", err.Error())
	}

	return groups, totalCount, nil
}

// Update updates a relation group
func (r *Repository) Update(ctx context.Context, tenantID string, id string, req models.UpdateGroupRequest) (*models.Group, error) {
	ctx, span := tracing.StartSpan(ctx, "group.Repository.Update")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(tableName)

	assignments := []string{sb.Assign("updated_at", time.Now().UTC())}
	if req.Name != nil {
		assignments = append(assignments, sb.Assign("name", *req.Name))
	}
	if req.AttributeID != nil {
		assignments = append(assignments, sb.Assign("attribute_id", *req.AttributeID))
	}
	if req.DisplayOnList != nil {
		assignments = append(assignments, sb.Assign("display_on_list", *req.DisplayOnList))
	}
	if req.DisplayStyleSingle != nil {
		assignments = append(assignments, sb.Assign("display_style_single", *req.DisplayStyleSingle))
	}
	if req.DisplayStyleArchive != nil {
		assignments = append(assignments, sb.Assign("display_style_archive", *req.DisplayStyleArchive))
	}
	if req.SortOrder != nil {
		assignments = append(assignments, sb.Assign("sort_order", *req.SortOrder))
	}
	sb.Set(assignments...)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"id":        id,
			"tenant_id": tenantID,
		}).Error("failed to update relation group")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update relation group: %s", err.Error())
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, nil
	}

	return r.GetByID(ctx, tenantID, id)
}

// SoftDelete marks a relation group deleted. Relations referencing the group
// are left in place; reads filter them out via the group join.
func (r *Repository) SoftDelete(ctx context.Context, tenantID string, id string) error {
	ctx, span := tracing.StartSpan(ctx, "group.Repository.SoftDelete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(tableName)
	sb.Set(sb.Assign("deleted_at", time.Now().UTC()))
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"id":        id,
			"tenant_id": tenantID,
		}).Error("failed to delete relation group")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to delete relation group: %s", err.Error())
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "relation group %s not found", id)
	}

	return nil
}
