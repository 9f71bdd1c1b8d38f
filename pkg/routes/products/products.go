package products

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	pricehistoryrepo "github.com/multistore/variants/internal/repositories/pricehistory"
	productrepo "github.com/multistore/variants/internal/repositories/product"
	"github.com/multistore/variants/pkg/appcontext"
	"github.com/multistore/variants/pkg/models"
)

// Register registers product catalog routes
func Register(g *echo.Group) {
	g.GET("/search", Search)
	g.GET("/:id/prices", Prices)
}

// Search finds products by name or SKU for the admin relation picker
func Search(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	siteID := appcontext.GetSiteID(ctx)
	if siteID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "site_id is required")
	}

	term := c.QueryParam("q")
	if term == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "q is required")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	ctx, repo, err := ectoinject.GetContext[*productrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, totalCount, err := repo.Search(ctx, tenantID, siteID, term, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.ProductSearchResponse{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

// Prices returns a product's price observations and the lowest price within
// the window. Window defaults to 30 days, overridable with ?days=N.
func Prices(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	siteID := appcontext.GetSiteID(ctx)
	if siteID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "site_id is required")
	}

	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "id must be a product id")
	}

	days, _ := strconv.Atoi(c.QueryParam("days"))
	if days < 1 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	ctx, repo, err := ectoinject.GetContext[*productrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	ctx, prices, err := ectoinject.GetContext[*pricehistoryrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	product, err := repo.GetByID(ctx, tenantID, siteID, productID)
	if err != nil {
		return err
	}
	if product == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "product %d not found", productID)
	}

	points, err := prices.History(ctx, tenantID, productID, since)
	if err != nil {
		return err
	}
	lowest, err := prices.LowestSince(ctx, tenantID, productID, since)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.PriceHistoryResponse{
		ProductID:   productID,
		SKU:         product.SKU,
		Since:       since,
		LowestPrice: lowest,
		Points:      points,
	})
}
