package tenant

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/odontoclinic/agenda/internal/platform/db"
)

// RequireModule rejects requests from tenants that do not have module enabled.
// It must run after the tenant middleware.
func RequireModule(svc *Service, module string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			tenantID := db.TenantFromContext(ctx)
			if tenantID == "" {
				return echo.NewHTTPError(http.StatusForbidden, "user not associated with any clinic")
			}
			ok, err := svc.ModuleEnabled(ctx, tenantID, module)
			if err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Str("module", module).Msg("module check failed")
				return echo.NewHTTPError(http.StatusServiceUnavailable, "module check unavailable")
			}
			if !ok {
				return echo.NewHTTPError(http.StatusForbidden, "module "+module+" is not enabled for this clinic")
			}
			return next(c)
		}
	}
}
