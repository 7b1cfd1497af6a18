package tenant

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

// RegisterRoutes mounts the module administration endpoints. They are not
// behind RequireModule so an admin can re-enable a disabled module.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/tenant", auth.RequireRole(auth.RoleAdmin))
	g.GET("/modules", h.ListModules)
	g.PUT("/modules/:module", h.SetModule)
}

func (h *Handler) ListModules(c echo.Context) error {
	tenantID := db.TenantFromContext(c.Request().Context())
	mods, err := h.svc.Modules(c.Request().Context(), tenantID)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list modules")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"tenantId": tenantID, "modules": mods})
}

type setModuleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *Handler) SetModule(c echo.Context) error {
	var req setModuleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Enabled == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "enabled is required")
	}
	tenantID := db.TenantFromContext(c.Request().Context())
	module := c.Param("module")

	err := h.svc.SetModule(c.Request().Context(), tenantID, module, *req.Enabled)
	switch {
	case errors.Is(err, ErrUnknownModule):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update module")
	}
	return c.JSON(http.StatusOK, Module{Key: module, Enabled: *req.Enabled})
}
