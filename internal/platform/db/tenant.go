package db

import (
	"context"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"
)

type contextKey string

const TenantIDKey contextKey = "tenant_id"

var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ValidTenantID reports whether id is an acceptable tenant identifier.
func ValidTenantID(id string) bool {
	return len(id) <= 63 && tenantIDPattern.MatchString(id)
}

// TenantMiddleware resolves the tenant of the request and stores it in the
// request context. When allowOverride is false only the token claim (or the
// default tenant) is honoured, so a caller cannot address another tenant by
// header or query string.
func TenantMiddleware(defaultTenant string, allowOverride bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenantID := extractTenantID(c, defaultTenant, allowOverride)

			if !ValidTenantID(tenantID) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant identifier")
			}

			ctx := WithTenant(c.Request().Context(), tenantID)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("tenant_id", tenantID)

			return next(c)
		}
	}
}

func extractTenantID(c echo.Context, defaultTenant string, allowOverride bool) string {
	// 1. JWT claim (set by auth middleware)
	if tid, ok := c.Get("jwt_tenant_id").(string); ok && tid != "" {
		return tid
	}

	if allowOverride {
		// 2. X-Tenant-ID header
		if tid := c.Request().Header.Get("X-Tenant-ID"); tid != "" {
			return tid
		}
		// 3. Query parameter
		if tid := c.QueryParam("tenant_id"); tid != "" {
			return tid
		}
	}

	return defaultTenant
}

// WithTenant returns a copy of ctx carrying tenantID.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

// TenantFromContext retrieves the tenant ID from context.
func TenantFromContext(ctx context.Context) string {
	tid, _ := ctx.Value(TenantIDKey).(string)
	return tid
}
