package product

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

// Repository handles catalog product reads. The catalog is written by the
// event consumer, not by the HTTP surface.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new product repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "products"

var columns = []string{"id", "tenant_id", "site_id", "sku", "name", "permalink", "price", "sale_price", "on_sale", "image_url", "created_at", "updated_at", "deleted_at"}

// GetByID gets a product by its site-local numeric id
func (r *Repository) GetByID(ctx context.Context, tenantID, siteID string, id int64) (*models.Product, error) {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.Equal("site_id", siteID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()

	var p models.Product
	if err := r.db.GetContext(ctx, &p, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"id":        id,
			"tenant_id": tenantID,
			"site_id":   siteID,
		}).Error("failed to get product by id")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get product: %s", err.Error())
	}

	return &p, nil
}

// GetBySKU gets a product by SKU within one site's catalog
func (r *Repository) GetBySKU(ctx context.Context, tenantID, siteID, sku string) (*models.Product, error) {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.GetBySKU")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("site_id", siteID),
		sb.Equal("sku", sku),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()

	var p models.Product
	if err := r.db.GetContext(ctx, &p, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
			"site_id":   siteID,
			"sku":       sku,
		}).Error("failed to get product by sku")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get product: %s", err.Error())
	}

	return &p, nil
}

// ListBySKUs returns one site's products for a set of SKUs. SKUs absent from
// the site's catalog are simply missing from the result, which is how the
// resolver detects edges pointing outside the current storefront.
func (r *Repository) ListBySKUs(ctx context.Context, tenantID, siteID string, skus []string) ([]models.Product, error) {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.ListBySKUs")
	defer span.End()

	if len(skus) == 0 {
		return []models.Product{}, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("site_id", siteID),
		sb.In("sku", sqlbuilder.Flatten(skus)...),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()

	products := []models.Product{}
	if err := r.db.SelectContext(ctx, &products, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
			"site_id":   siteID,
			"skus":      len(skus),
		}).Error("failed to list products by skus")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list products: %s", err.Error())
	}

	return products, nil
}

// Search finds products by name or SKU substring for the admin picker
func (r *Repository) Search(ctx context.Context, tenantID, siteID, term string, page, pageSize int) ([]models.Product, int, error) {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.Search")
	defer span.End()

	pattern := "%" + term + "%"

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From(tableName)
	countSb.Where(
		countSb.Equal("tenant_id", tenantID),
		countSb.Equal("site_id", siteID),
		countSb.Or(countSb.ILike("name", pattern), countSb.ILike("sku", pattern)),
		countSb.IsNull("deleted_at"),
	)

	query, args := countSb.Build()

	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to count product search results")
		return nil, 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to search products: %s", err.Error())
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("site_id", siteID),
		sb.Or(sb.ILike("name", pattern), sb.ILike("sku", pattern)),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("name", "id")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args = sb.Build()

	products := []models.Product{}
	if err := r.db.SelectContext(ctx, &products, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to search products")
		return nil, 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to search products: %s", err.Error())
	}

	return products, totalCount, nil
}

// attributeValueRow pairs a product with one attribute value
type attributeValueRow struct {
	ProductID int64  `db:"product_id"`
	Value     string `db:"value"`
}

// AttributeValues returns attribute values for many products in one query,
// keyed by product id.
func (r *Repository) AttributeValues(ctx context.Context, productIDs []int64, attributeID int64) (map[int64]string, error) {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.AttributeValues")
	defer span.End()

	if len(productIDs) == 0 {
		return map[int64]string{}, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("product_id", "value")
	sb.From("product_attributes")
	sb.Where(
		sb.In("product_id", sqlbuilder.Flatten(productIDs)...),
		sb.Equal("attribute_id", attributeID),
	)
	sb.OrderBy("product_id", "value")

	query, args := sb.Build()

	rows := []attributeValueRow{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"attribute_id": attributeID,
			"products":     len(productIDs),
		}).Error("failed to list product attribute values")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list attribute values: %s", err.Error())
	}

	values := make(map[int64]string, len(rows))
	for _, row := range rows {
		if _, ok := values[row.ProductID]; !ok {
			values[row.ProductID] = row.Value
		}
	}

	return values, nil
}

// Upsert stores a catalog product row from the event stream
func (r *Repository) Upsert(ctx context.Context, p models.Product) error {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.Upsert")
	defer span.End()

	query := `
		INSERT INTO products (
			tenant_id, site_id, sku, name, permalink, price, sale_price, on_sale, image_url, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (tenant_id, site_id, sku)
		DO UPDATE SET
			name = EXCLUDED.name,
			permalink = EXCLUDED.permalink,
			price = EXCLUDED.price,
			sale_price = EXCLUDED.sale_price,
			on_sale = EXCLUDED.on_sale,
			image_url = EXCLUDED.image_url,
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL
	`

	if _, err := r.db.ExecContext(ctx, query,
		p.TenantID, p.SiteID, p.SKU, p.Name, p.Permalink, p.Price, p.SalePrice, p.OnSale, p.ImageURL, time.Now().UTC(),
	); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": p.TenantID,
			"site_id":   p.SiteID,
			"sku":       p.SKU,
		}).Error("failed to upsert product")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to upsert product: %s", err.Error())
	}

	return nil
}

// SoftDelete marks one site's product row deleted
func (r *Repository) SoftDelete(ctx context.Context, tenantID, siteID, sku string) error {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.SoftDelete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(tableName)
	sb.Set(
		sb.Assign("deleted_at", time.Now().UTC()),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("site_id", siteID),
		sb.Equal("sku", sku),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
			"site_id":   siteID,
			"sku":       sku,
		}).Error("failed to delete product")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to delete product: %s", err.Error())
	}

	return nil
}
