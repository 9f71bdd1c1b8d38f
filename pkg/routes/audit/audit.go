package audit

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/multistore/variants/pkg/appcontext"
	auditsvc "github.com/multistore/variants/pkg/audit"
)

// Register registers consistency audit routes
func Register(g *echo.Group) {
	g.POST("/relations", Run)
}

// Run checks the tenant's relation graph. With ?repair=true it also fixes
// what it finds.
func Run(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	repair := c.QueryParam("repair") == "true"

	ctx, auditor, err := ectoinject.GetContext[*auditsvc.Auditor](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get auditor")
	}

	report, err := auditor.Run(ctx, tenantID, repair)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, report)
}
