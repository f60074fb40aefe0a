package batch

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/costwise/fern/internal/repositories/batchrun"
	appcontext "github.com/costwise/fern/pkg/context"
	"github.com/costwise/fern/pkg/matching"
	"github.com/costwise/fern/pkg/models"
)

// Register registers batch run routes
func Register(g *echo.Group) {
	g.POST("", RunBatch)
	g.GET("", ListBatchRuns)
	g.GET("/:id", GetBatchRun)
}

func requestScope(c echo.Context) (models.Scope, error) {
	ctx := c.Request().Context()
	scope := models.Scope{
		TenantID:  appcontext.GetTenantID(ctx),
		OrgID:     appcontext.GetOrgID(ctx),
		ProjectID: appcontext.GetProjectID(ctx),
	}
	if scope.TenantID == "" || scope.OrgID == "" || scope.ProjectID == "" {
		return scope, httperror.NewHTTPError(http.StatusBadRequest, "X-Tenant-ID, X-Org-ID and X-Project-ID headers are required")
	}
	return scope, nil
}

// RunBatch triggers a matching run over the scope's active schedule items
func RunBatch(c echo.Context) error {
	scope, err := requestScope(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	var req models.RunBatchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ReferenceDate.IsZero() {
		req.ReferenceDate = time.Now().UTC()
	}

	ctx, engine, err := ectoinject.GetContext[*matching.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := engine.RunBatch(ctx, scope, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// GetBatchRun gets a batch run by ID
func GetBatchRun(c echo.Context) error {
	scope, err := requestScope(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	ctx, repo, err := ectoinject.GetContext[*batchrun.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	run, err := repo.Get(ctx, scope, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, run)
}

// ListBatchRuns lists the scope's recent batch runs
func ListBatchRuns(c echo.Context) error {
	scope, err := requestScope(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx, repo, err := ectoinject.GetContext[*batchrun.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	runs, err := repo.ListRecent(ctx, scope, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, runs)
}
