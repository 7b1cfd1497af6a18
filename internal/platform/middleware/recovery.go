package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Recovery turns a handler panic into a 500 carrying the request id.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				rid, _ := c.Get("request_id").(string)
				tenant, _ := c.Get("tenant_id").(string)
				logger.Error().
					Str("request_id", rid).
					Str("tenant_id", tenant).
					Str("method", c.Request().Method).
					Str("route", c.Path()).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				err = echo.NewHTTPError(http.StatusInternalServerError, map[string]string{
					"error":     "internal server error",
					"requestId": rid,
				})
			}()
			return next(c)
		}
	}
}
