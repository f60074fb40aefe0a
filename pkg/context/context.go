// Package context carries per-request identity through the call stack: the
// request id and the tenant/org/project scope every query filters on.
package context

import "context"

type contextKey string

const (
	requestIDKey = contextKey("request-id")
	tenantIDKey  = contextKey("tenant-id")
	orgIDKey     = contextKey("org-id")
	projectIDKey = contextKey("project-id")
	userIDKey    = contextKey("user-id")
)

func getString(ctx context.Context, key contextKey) string {
	value, _ := ctx.Value(key).(string)
	return value
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return getString(ctx, requestIDKey)
}

func SetTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

func GetTenantID(ctx context.Context) string {
	return getString(ctx, tenantIDKey)
}

func SetOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgIDKey, orgID)
}

func GetOrgID(ctx context.Context) string {
	return getString(ctx, orgIDKey)
}

func SetProjectID(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, projectIDKey, projectID)
}

func GetProjectID(ctx context.Context) string {
	return getString(ctx, projectIDKey)
}

func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	return getString(ctx, userIDKey)
}
