package relations

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/multistore/variants/pkg/appcontext"
	"github.com/multistore/variants/pkg/models"
	relationssvc "github.com/multistore/variants/pkg/relations"
)

var validate = validator.New()

// Register registers product relation routes
func Register(g *echo.Group) {
	g.GET("/product/:id", Get)
	g.PUT("/product/:id", Save)
}

// Get returns a product's relations grouped by relation group, with targets
// resolved to the current site's product ids
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

	ctx, service, err := ectoinject.GetContext[*relationssvc.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get relations service")
	}

	result, err := service.GetProductRelations(ctx, tenantID, siteID, productID, renderCtx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Save replaces a product's relation set with the submitted one
func Save(c echo.Context) error {
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

	var req models.SaveRelationsRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	for _, sub := range req.Relations {
		if sub.Settings != nil {
			if err := sub.Settings.Validate(); err != nil {
				return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
			}
		}
	}

	ctx, service, err := ectoinject.GetContext[*relationssvc.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get relations service")
	}

	result, err := service.SaveRelations(ctx, tenantID, siteID, productID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
