package scheduleitem

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	itemrepo "github.com/costwise/fern/internal/repositories/scheduleitem"
	appcontext "github.com/costwise/fern/pkg/context"
	"github.com/costwise/fern/pkg/ingest"
	"github.com/costwise/fern/pkg/models"
)

var validate = validator.New()

// Register registers schedule item routes
func Register(g *echo.Group) {
	g.POST("/commit", CommitIngestBatch)
	g.GET("", ListScheduleItems)
	g.GET("/:id", GetScheduleItem)
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

// CommitIngestBatchRequest is the HTTP ingestion commit payload
type CommitIngestBatchRequest struct {
	Items []models.CreateScheduleItemRequest `json:"items" validate:"required,min=1,dive"`
}

// CommitIngestBatch commits a parsed schedule export as the scope's active
// item set
func CommitIngestBatch(c echo.Context) error {
	scope, err := requestScope(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	var req CommitIngestBatchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*ingest.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	count, err := svc.CommitBatch(ctx, scope, req.Items)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]int{"committed": count})
}

// ListScheduleItems lists the scope's active items
func ListScheduleItems(c echo.Context) error {
	scope, err := requestScope(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	ctx, repo, err := ectoinject.GetContext[*itemrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	resp, err := repo.List(ctx, scope, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// GetScheduleItem gets a schedule item by ID
func GetScheduleItem(c echo.Context) error {
	scope, err := requestScope(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	ctx, repo, err := ectoinject.GetContext[*itemrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	item, err := repo.Get(ctx, scope, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, item)
}
