package pricehistory

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/multistore/variants/pkg/database"
	"github.com/multistore/variants/pkg/models"
	"github.com/multistore/variants/pkg/tracing"
)

// Repository handles the price observation log used for "lowest price in the
// last N days" rendering.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new price history repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Append records one price observation
func (r *Repository) Append(ctx context.Context, tenantID string, productID int64, price float64) error {
	ctx, span := tracing.StartSpan(ctx, "pricehistory.Repository.Append")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("price_history")
	sb.Cols("tenant_id", "product_id", "price", "recorded_at")
	sb.Values(tenantID, productID, price, time.Now().UTC())

	query, args := sb.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":  tenantID,
			"product_id": productID,
		}).Error("failed to append price observation")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to append price observation: %s", err.Error())
	}

	return nil
}

// LowestSince returns the lowest recorded price for a product since the given
// time. Returns nil when no observation exists in the window.
func (r *Repository) LowestSince(ctx context.Context, tenantID string, productID int64, since time.Time) (*float64, error) {
	ctx, span := tracing.StartSpan(ctx, "pricehistory.Repository.LowestSince")
	defer span.End()

	query := `
		SELECT MIN(price) FROM price_history
		WHERE tenant_id = $1
		  AND product_id = $2
		  AND recorded_at >= $3
	`

	var lowest sql.NullFloat64
	if err := r.db.GetContext(ctx, &lowest, query, tenantID, productID, since); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":  tenantID,
			"product_id": productID,
		}).Error("failed to query lowest price")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to query lowest price: %s", err.Error())
	}

	if !lowest.Valid {
		return nil, nil
	}
	return &lowest.Float64, nil
}

// lowestRow pairs a product with its lowest observed price
type lowestRow struct {
	ProductID int64   `db:"product_id"`
	Lowest    float64 `db:"lowest"`
}

// LowestSinceBulk returns the lowest recorded price per product for a set of
// products, in one query. Products with no observations are absent from the
// result.
func (r *Repository) LowestSinceBulk(ctx context.Context, tenantID string, productIDs []int64, since time.Time) (map[int64]float64, error) {
	ctx, span := tracing.StartSpan(ctx, "pricehistory.Repository.LowestSinceBulk")
	defer span.End()

	if len(productIDs) == 0 {
		return map[int64]float64{}, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("product_id", "MIN(price) AS lowest")
	sb.From("price_history")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.In("product_id", sqlbuilder.Flatten(productIDs)...),
		sb.GreaterEqualThan("recorded_at", since),
	)
	sb.GroupBy("product_id")

	query, args := sb.Build()

	rows := []lowestRow{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
			"products":  len(productIDs),
		}).Error("failed to query lowest prices")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to query lowest prices: %s", err.Error())
	}

	lowest := make(map[int64]float64, len(rows))
	for _, row := range rows {
		lowest[row.ProductID] = row.Lowest
	}

	return lowest, nil
}

// History returns the raw observations for a product within the window,
// newest first.
func (r *Repository) History(ctx context.Context, tenantID string, productID int64, since time.Time) ([]models.PricePoint, error) {
	ctx, span := tracing.StartSpan(ctx, "pricehistory.Repository.History")
	defer span.End()

	query := `
		SELECT price, recorded_at FROM price_history
		WHERE tenant_id = $1
		  AND product_id = $2
		  AND recorded_at >= $3
		ORDER BY recorded_at DESC
	`

	points := []models.PricePoint{}
	if err := r.db.SelectContext(ctx, &points, query, tenantID, productID, since); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":  tenantID,
			"product_id": productID,
		}).Error("failed to query price history")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to query price history: %s", err.Error())
	}

	return points, nil
}
