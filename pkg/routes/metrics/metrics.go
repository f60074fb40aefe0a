package metrics

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	appcontext "github.com/costwise/fern/pkg/context"
	"github.com/costwise/fern/pkg/metrics"
	"github.com/costwise/fern/pkg/models"
)

// Register registers match metrics routes
func Register(g *echo.Group) {
	g.GET("", GetMatchMetrics)
}

// GetMatchMetrics computes and returns the scope's current match metrics
func GetMatchMetrics(c echo.Context) error {
	ctx := c.Request().Context()
	scope := models.Scope{
		TenantID:  appcontext.GetTenantID(ctx),
		OrgID:     appcontext.GetOrgID(ctx),
		ProjectID: appcontext.GetProjectID(ctx),
	}
	if scope.TenantID == "" || scope.OrgID == "" || scope.ProjectID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "X-Tenant-ID, X-Org-ID and X-Project-ID headers are required")
	}

	ctx, aggregator, err := ectoinject.GetContext[*metrics.Aggregator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	m, err := aggregator.Compute(ctx, scope)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, m)
}
