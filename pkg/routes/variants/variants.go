package variants

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/multistore/variants/pkg/appcontext"
	"github.com/multistore/variants/pkg/grouping"
	"github.com/multistore/variants/pkg/models"
)

var validate = validator.New()

// Register registers variant map routes
func Register(g *echo.Group) {
	g.GET("/product/:id", Get)
	g.POST("/archive", Archive)
}

// Get returns the variant map for one product page
func Get(c echo.Context) error {
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
		return httperror.NewHTTPError(http.StatusBadRequest, "product id must be an integer")
	}

	renderCtx := models.RenderContext(c.QueryParam("context"))
	if renderCtx == "" {
		renderCtx = models.RenderContextSingle
	}
	if !renderCtx.Valid() {
		return httperror.NewHTTPError(http.StatusBadRequest, "context must be single or archive")
	}

	ctx, service, err := ectoinject.GetContext[*grouping.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get variants service")
	}

	result, err := service.BuildVariantMap(ctx, tenantID, siteID, productID, renderCtx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Archive returns variant maps for every product visible on a listing page
func Archive(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	siteID := appcontext.GetSiteID(ctx)
	if siteID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "site_id is required")
	}

	var req models.ArchiveVariantsRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, service, err := ectoinject.GetContext[*grouping.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get variants service")
	}

	items, err := service.BuildArchiveMaps(ctx, tenantID, siteID, req.ProductIDs)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.ArchiveVariantsResponse{Items: items})
}
