package scheduling

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/odontoclinic/agenda/internal/platform/auth"
	"github.com/odontoclinic/agenda/internal/platform/db"
	"github.com/odontoclinic/agenda/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleDentist, auth.RoleReceptionist, auth.RoleStaff))
	read.POST("/appointments/check-availability", h.CheckAvailability)
	read.GET("/appointments", h.ListAppointments)
	read.GET("/appointments/:id", h.GetAppointment)
	read.GET("/professionals", h.ListProfessionals)
	read.GET("/rooms", h.ListRooms)
	read.GET("/patients", h.ListPatients)

	write := api.Group("", auth.RequireRole(auth.RoleDentist, auth.RoleReceptionist))
	write.POST("/appointments", h.CreateAppointment)
	write.PATCH("/appointments/:id", h.UpdateAppointment)
	write.POST("/appointments/:id/cancel", h.CancelAppointment)
	write.POST("/appointments/:id/status", h.ChangeStatus)
	write.POST("/patients", h.CreatePatient)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/professionals", h.CreateProfessional)
	admin.POST("/rooms", h.CreateRoom)
}

func tenantOf(c echo.Context) string {
	return db.TenantFromContext(c.Request().Context())
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// respondError maps domain errors onto HTTP responses.
func (h *Handler) respondError(c echo.Context, err error) error {
	var ve *ValidationError
	var ae *AuthorizationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	case errors.As(err, &ae):
		return echo.NewHTTPError(http.StatusForbidden, ae.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	case errors.Is(err, ErrPersistenceRace):
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error": ErrPersistenceRace.Error(),
			"retry": true,
		})
	}
	zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("scheduling request failed")
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

func conflictResponse(c echo.Context, res *BookingResult) error {
	return c.JSON(http.StatusConflict, map[string]interface{}{
		"error":       "scheduling conflict detected",
		"conflicts":   res.Conflicts,
		"suggestions": res.Suggestions,
	})
}

// -- Appointments --

func (h *Handler) CheckAvailability(c echo.Context) error {
	var cand Candidate
	if err := c.Bind(&cand); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cand.TenantID = tenantOf(c)
	out, err := h.svc.CheckAvailability(c.Request().Context(), cand)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var d Draft
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Book(c.Request().Context(), tenantOf(c), d)
	if err != nil {
		return h.respondError(c, err)
	}
	if !res.Booked() {
		return conflictResponse(c, res)
	}
	return c.JSON(http.StatusCreated, res.Appointment)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), tenantOf(c), id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{
		TenantID: tenantOf(c),
		Status:   c.QueryParam("status"),
		Limit:    pg.Limit,
		Offset:   pg.Offset,
	}
	var err error
	if f.From, err = parseTimeParam(c, "from"); err != nil {
		return err
	}
	if f.To, err = parseTimeParam(c, "to"); err != nil {
		return err
	}
	if f.ProfessionalID, err = parseUUIDParam(c, "professionalId"); err != nil {
		return err
	}
	if f.RoomID, err = parseUUIDParam(c, "roomId"); err != nil {
		return err
	}

	items, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return h.respondError(c, err)
	}
	if items == nil {
		items = []Appointment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p Patch
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Reschedule(c.Request().Context(), tenantOf(c), id, p)
	if err != nil {
		return h.respondError(c, err)
	}
	if !res.Booked() {
		return conflictResponse(c, res)
	}
	return c.JSON(http.StatusOK, res.Appointment)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Cancel(c.Request().Context(), tenantOf(c), id, req.Reason)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) ChangeStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Transition(c.Request().Context(), tenantOf(c), id, req.Status)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// -- Resources --

func (h *Handler) ListProfessionals(c echo.Context) error {
	items, err := h.svc.ListProfessionals(c.Request().Context(), tenantOf(c), c.QueryParam("all") != "true")
	if err != nil {
		return h.respondError(c, err)
	}
	if items == nil {
		items = []Professional{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateProfessional(c echo.Context) error {
	var p Professional
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.TenantID = tenantOf(c)
	p.Active = true
	if err := h.svc.CreateProfessional(c.Request().Context(), &p); err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListRooms(c echo.Context) error {
	items, err := h.svc.ListRooms(c.Request().Context(), tenantOf(c), c.QueryParam("all") != "true")
	if err != nil {
		return h.respondError(c, err)
	}
	if items == nil {
		items = []Room{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateRoom(c echo.Context) error {
	var r Room
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r.TenantID = tenantOf(c)
	r.Active = true
	if err := h.svc.CreateRoom(c.Request().Context(), &r); err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), tenantOf(c), pg.Limit, pg.Offset)
	if err != nil {
		return h.respondError(c, err)
	}
	if items == nil {
		items = []Patient{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.TenantID = tenantOf(c)
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func parseTimeParam(c echo.Context, name string) (time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, name+" must be an RFC 3339 timestamp")
	}
	return t, nil
}

func parseUUIDParam(c echo.Context, name string) (*uuid.UUID, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &id, nil
}
