package priceentry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	entryrepo "github.com/costwise/fern/internal/repositories/priceentry"
	appcontext "github.com/costwise/fern/pkg/context"
	"github.com/costwise/fern/pkg/database"
	"github.com/costwise/fern/pkg/matching"
	"github.com/costwise/fern/pkg/models"
)

var validate = validator.New()

// Register registers price entry routes
func Register(g *echo.Group) {
	g.POST("", CreatePriceEntry)
	g.GET("", ListPriceEntries)
	g.GET("/:id", GetPriceEntry)
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

// CreatePriceEntryRequest is the price book entry creation payload
type CreatePriceEntryRequest struct {
	Vendor      string     `json:"vendor" validate:"required"`
	SKU         string     `json:"sku" validate:"required"`
	Description string     `json:"description"`
	UnitPrice   float64    `json:"unit_price" validate:"gte=0"`
	Currency    string     `json:"currency" validate:"required"`
	Unit        string     `json:"unit"`
	Category    string     `json:"category"`
	ValidFrom   time.Time  `json:"valid_from" validate:"required"`
	ValidTo     *time.Time `json:"valid_to,omitempty"`
}

// CreatePriceEntry adds a price book entry. A new window for an existing
// vendor and SKU closes the previous open-ended one.
func CreatePriceEntry(c echo.Context) error {
	scope, err := requestScope(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	var req CreatePriceEntryRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ValidTo != nil && req.ValidTo.Before(req.ValidFrom) {
		return httperror.NewHTTPError(http.StatusBadRequest, "valid_to must not precede valid_from")
	}

	entry := &models.PriceEntry{
		TenantID:    scope.TenantID,
		OrgID:       scope.OrgID,
		ProjectID:   scope.ProjectID,
		Vendor:      req.Vendor,
		SKU:         req.SKU,
		Description: req.Description,
		UnitPrice:   req.UnitPrice,
		Currency:    req.Currency,
		Unit:        req.Unit,
		Category:    req.Category,
		ValidFrom:   req.ValidFrom,
		ValidTo:     req.ValidTo,
	}
	if record, err := matching.Normalize(req.Description, matching.Attributes{Category: req.Category, Unit: req.Unit}); err == nil {
		entry.Tokens = database.JSONB[[]string]{Data: record.Tokens}
	} else {
		entry.Tokens = database.JSONB[[]string]{Data: []string{}}
	}

	ctx, repo, err := ectoinject.GetContext[*entryrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	created, err := repo.Create(ctx, entry)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, created)
}

// ListPriceEntries lists the scope's price entries
func ListPriceEntries(c echo.Context) error {
	scope, err := requestScope(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	ctx, repo, err := ectoinject.GetContext[*entryrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	resp, err := repo.List(ctx, scope, c.QueryParam("vendor"), c.QueryParam("category"), page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// GetPriceEntry gets a price entry by ID
func GetPriceEntry(c echo.Context) error {
	scope, err := requestScope(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	ctx, repo, err := ectoinject.GetContext[*entryrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	entry, err := repo.Get(ctx, scope, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entry)
}
