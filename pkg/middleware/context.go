package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	appcontext "github.com/costwise/fern/pkg/context"
)

const (
	// HeaderTenantID carries the tenant of the request scope.
	HeaderTenantID = "X-Tenant-ID"
	// HeaderOrgID carries the organization of the request scope.
	HeaderOrgID = "X-Org-ID"
	// HeaderProjectID carries the project of the request scope.
	HeaderProjectID = "X-Project-ID"
	// HeaderUserID identifies the acting user.
	HeaderUserID = "X-User-ID"
)

// Context copies the request id and the scope headers onto the request
// context, where handlers, repositories and the loggers read them.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			ctx := req.Context()
			ctx = appcontext.SetRequestID(ctx, requestID)
			ctx = appcontext.SetTenantID(ctx, req.Header.Get(HeaderTenantID))
			ctx = appcontext.SetOrgID(ctx, req.Header.Get(HeaderOrgID))
			ctx = appcontext.SetProjectID(ctx, req.Header.Get(HeaderProjectID))
			ctx = appcontext.SetUserID(ctx, req.Header.Get(HeaderUserID))

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
