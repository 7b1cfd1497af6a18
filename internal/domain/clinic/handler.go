package clinic

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/odontoclinic/agenda/internal/platform/auth"
	"github.com/odontoclinic/agenda/internal/platform/db"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleDentist, auth.RoleReceptionist, auth.RoleStaff))
	read.GET("/clinic/settings", h.GetSettings)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin))
	write.PUT("/clinic/settings", h.UpdateSettings)
}

func (h *Handler) GetSettings(c echo.Context) error {
	tenantID := db.TenantFromContext(c.Request().Context())
	s, err := h.svc.Settings(c.Request().Context(), tenantID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load clinic settings")
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) UpdateSettings(c echo.Context) error {
	var in Settings
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	tenantID := db.TenantFromContext(c.Request().Context())
	out, err := h.svc.Update(c.Request().Context(), tenantID, &in)
	if errors.Is(err, ErrInvalidSettings) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save clinic settings")
	}
	return c.JSON(http.StatusOK, out)
}
