package taxonomy

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	appcontext "github.com/costwise/fern/pkg/context"
	taxonomystore "github.com/costwise/fern/pkg/taxonomy"
)

var validate = validator.New()

// Register registers category taxonomy routes
func Register(g *echo.Group) {
	g.PUT("/categories", UpsertCategory)
	g.GET("/categories", GetTaxonomy)
}

// UpsertCategoryRequest links a category key to its parent in the tenant's
// taxonomy
type UpsertCategoryRequest struct {
	Key       string `json:"key" validate:"required"`
	ParentKey string `json:"parent_key"`
}

// UpsertCategory creates or updates a category node and its parent edge
func UpsertCategory(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "X-Tenant-ID header is required")
	}

	var req UpsertCategoryRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, store, err := ectoinject.GetContext[*taxonomystore.Store](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := store.UpsertCategory(ctx, tenantID, req.Key, req.ParentKey); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// GetTaxonomy returns the tenant's category parent map
func GetTaxonomy(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "X-Tenant-ID header is required")
	}

	ctx, store, err := ectoinject.GetContext[*taxonomystore.Store](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	snapshot, err := store.LoadSnapshot(ctx, tenantID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"size": snapshot.Size(), "parents": snapshot.Parents()})
}
