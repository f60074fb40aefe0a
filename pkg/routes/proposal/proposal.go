package proposal

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	proposalrepo "github.com/costwise/fern/internal/repositories/proposal"
	appcontext "github.com/costwise/fern/pkg/context"
	"github.com/costwise/fern/pkg/models"
	"github.com/costwise/fern/pkg/review"
)

var validate = validator.New()

// Register registers match proposal routes
func Register(g *echo.Group) {
	g.GET("", ListProposals)
	g.GET("/:id", GetProposal)
	g.POST("/:id/approve", ApproveProposal)
	g.POST("/:id/reject", RejectProposal)
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

// mapReviewError translates review domain errors to HTTP errors. Anything
// unrecognized passes through for the error middleware.
func mapReviewError(err error) error {
	var invalid *models.InvalidCandidateError
	if errors.As(err, &invalid) {
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, invalid.Error())
	}
	var decided *models.AlreadyDecidedError
	if errors.As(err, &decided) {
		return httperror.NewHTTPError(http.StatusConflict, decided.Error())
	}
	if errors.Is(err, models.ErrConcurrencyConflict) {
		return httperror.NewHTTPError(http.StatusConflict, "proposal was modified concurrently")
	}
	return err
}

// ListProposals lists the scope's proposals with optional filters
func ListProposals(c echo.Context) error {
	scope, err := requestScope(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	filter := proposalrepo.ListFilter{
		Status:      models.ProposalStatus(c.QueryParam("status")),
		Category:    c.QueryParam("category"),
		SortByScore: c.QueryParam("sort") == "score",
	}
	if v := c.QueryParam("low_confidence"); v != "" {
		lowConfidence := v == "true"
		filter.LowConfidence = &lowConfidence
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	ctx, svc, err := ectoinject.GetContext[*review.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	resp, err := svc.List(ctx, scope, filter, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// GetProposal gets a proposal by ID
func GetProposal(c echo.Context) error {
	scope, err := requestScope(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	ctx, svc, err := ectoinject.GetContext[*review.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	p, err := svc.Get(ctx, scope, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, p)
}

// ApproveProposal approves a pending proposal with a chosen price entry
func ApproveProposal(c echo.Context) error {
	scope, err := requestScope(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	var req models.ApproveProposalRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*review.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	p, err := svc.Approve(ctx, scope, c.Param("id"), req)
	if err != nil {
		return mapReviewError(err)
	}

	return c.JSON(http.StatusOK, p)
}

// RejectProposal rejects a pending proposal
func RejectProposal(c echo.Context) error {
	scope, err := requestScope(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	var req models.RejectProposalRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*review.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	p, err := svc.Reject(ctx, scope, c.Param("id"), req)
	if err != nil {
		return mapReviewError(err)
	}

	return c.JSON(http.StatusOK, p)
}
