package settings

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

// Repository handles relation settings persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new settings repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "relation_settings"

var columns = []string{"id", "tenant_id", "settings", "created_at", "updated_at"}

func (r *Repository) execer(ctx context.Context) database.Execer {
	if tx, ok := database.TxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// Create stores a new settings row. The payload is validated here so malformed
// blobs never reach the render path.
func (r *Repository) Create(ctx context.Context, tenantID string, payload *models.SettingsPayload) (*models.Settings, error) {
	ctx, span := tracing.StartSpan(ctx, "settings.Repository.Create")
	defer span.End()

	if err := payload.Validate(); err != nil {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid settings: %s", err.Error())
	}

	now := time.Now().UTC()
	id := uuid.New().String()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols("id", "tenant_id", "settings", "created_at", "updated_at")
	sb.Values(id, tenantID, database.JSONB[*models.SettingsPayload]{Val: payload}, now, now)

	query, args := sb.Build()

	if _, err := r.execer(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"id":        id,
			"tenant_id": tenantID,
		}).Error("failed to create relation settings")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create relation settings: %s", err.Error())
	}

	return &models.Settings{
		ID:        id,
		TenantID:  tenantID,
		Settings:  database.JSONB[*models.SettingsPayload]{Val: payload},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetByID gets a settings row by ID
func (r *Repository) GetByID(ctx context.Context, tenantID string, id string) (*models.Settings, error) {
	ctx, span := tracing.StartSpan(ctx, "settings.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()

	var s models.Settings
	if err := r.execer(ctx).GetContext(ctx, &s, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"id":        id,
			"tenant_id": tenantID,
		}).Error("failed to get relation settings")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get relation settings: %s", err.Error())
	}

	return &s, nil
}

// Update replaces the payload of an existing settings row. Because the row is
// shared by every edge pointing at its target, one update changes the tile
// everywhere it renders.
func (r *Repository) Update(ctx context.Context, tenantID string, id string, payload *models.SettingsPayload) error {
	ctx, span := tracing.StartSpan(ctx, "settings.Repository.Update")
	defer span.End()

	if err := payload.Validate(); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid settings: %s", err.Error())
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(tableName)
	sb.Set(
		sb.Assign("settings", database.JSONB[*models.SettingsPayload]{Val: payload}),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()

	result, err := r.execer(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"id":        id,
			"tenant_id": tenantID,
		}).Error("failed to update relation settings")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update relation settings: %s", err.Error())
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "relation settings %s not found", id)
	}

	return nil
}

// ListOrphaned returns settings rows no live relation references, for the
// consistency audit.
func (r *Repository) ListOrphaned(ctx context.Context, tenantID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "settings.Repository.ListOrphaned")
	defer span.End()

	query := `
		SELECT rs.id FROM relation_settings rs
		WHERE rs.tenant_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM product_relations pr
			WHERE pr.settings_id = rs.id
			  AND pr.deleted_at IS NULL
		  )
		ORDER BY rs.id
	`

	ids := []string{}
	if err := r.execer(ctx).SelectContext(ctx, &ids, query, tenantID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list orphaned relation settings")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list orphaned settings: %s", err.Error())
	}

	return ids, nil
}

// DeleteOrphaned removes settings rows no live relation references and
// returns how many were dropped. Soft-deleted edges still hold foreign keys,
// so those references are detached before the delete.
func (r *Repository) DeleteOrphaned(ctx context.Context, tenantID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "settings.Repository.DeleteOrphaned")
	defer span.End()

	query := `
		WITH orphaned AS (
			SELECT rs.id FROM relation_settings rs
			WHERE rs.tenant_id = $1
			  AND NOT EXISTS (
				SELECT 1 FROM product_relations pr
				WHERE pr.settings_id = rs.id
				  AND pr.deleted_at IS NULL
			  )
		), detached AS (
			UPDATE product_relations
			SET settings_id = NULL
			WHERE settings_id IN (SELECT id FROM orphaned)
		)
		DELETE FROM relation_settings
		WHERE id IN (SELECT id FROM orphaned)
	`

	result, err := r.execer(ctx).ExecContext(ctx, query, tenantID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to delete orphaned relation settings")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to delete orphaned settings: %s", err.Error())
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}
