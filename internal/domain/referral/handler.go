package referral

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	doctors := api.Group("", auth.RequireRole(auth.Doctors...))
	doctors.POST("/referrals", h.CreateReferral)
	doctors.GET("/referrals", h.ListReferrals)
	doctors.GET("/referrals/past", h.ListPastReferrals)
	doctors.PATCH("/referrals/:id/decline", h.DeclineReferral)
	doctors.GET("/referrals/:id/patient-info", h.PatientInfo)
	doctors.PATCH("/appointments/:id/complete", h.CompleteAppointment)

	secretary := api.Group("", auth.RequireRole(auth.RoleSecretary))
	secretary.GET("/referrals/pending", h.ListPendingReferrals)
	secretary.POST("/appointments", h.ScheduleAppointment)

	staff := api.Group("", auth.RequireRole(auth.MedicalStaff...))
	staff.GET("/doctors/:id/availability", h.Availability)
	staff.GET("/appointments/upcoming", h.UpcomingAppointments)
	staff.PATCH("/appointments/:id/cancel", h.CancelAppointment)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAppointmentNotFound), errors.Is(err, patient.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotReceivingDoctor), errors.Is(err, ErrNotAppointmentDoctor):
		return http.StatusForbidden
	case errors.Is(err, ErrNotPending), errors.Is(err, ErrNotScheduled), errors.Is(err, ErrSlotUnavailable):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func callerID(c echo.Context) uuid.UUID {
	id, _ := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	return id
}

func idParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func listOf[T any](items []*T) []*T {
	if items == nil {
		return []*T{}
	}
	return items
}

type createReferralRequest struct {
	Patient         uuid.UUID `json:"patient"`
	ReceivingDoctor uuid.UUID `json:"receiving_doctor"`
	Reason          string    `json:"reason"`
	Notes           string    `json:"notes"`
}

func (h *Handler) CreateReferral(c echo.Context) error {
	var req createReferralRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r := &Referral{
		PatientID:         req.Patient,
		ReceivingDoctorID: req.ReceivingDoctor,
		Reason:            req.Reason,
		Notes:             req.Notes,
	}
	if err := h.svc.Create(c.Request().Context(), callerID(c), r); err != nil {
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) ListReferrals(c echo.Context) error {
	items, err := h.svc.ListForParticipant(c.Request().Context(), callerID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, listOf(items))
}

func (h *Handler) ListPastReferrals(c echo.Context) error {
	items, err := h.svc.ListPast(c.Request().Context(), callerID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, listOf(items))
}

func (h *Handler) ListPendingReferrals(c echo.Context) error {
	items, err := h.svc.ListPending(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, listOf(items))
}

func (h *Handler) DeclineReferral(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	r, err := h.svc.Decline(c.Request().Context(), id, callerID(c))
	if err != nil {
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":  "Referral declined",
		"referral": r,
	})
}

func (h *Handler) PatientInfo(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	info, err := h.svc.PatientInfo(c.Request().Context(), id, callerID(c))
	if err != nil {
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, info)
}

func (h *Handler) Availability(c echo.Context) error {
	doctorID, err := idParam(c)
	if err != nil {
		return err
	}
	from, to, err := ParseRange(c.QueryParam("start_date"), c.QueryParam("end_date"), h.svc.Today())
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	slots, err := h.svc.Availability(c.Request().Context(), doctorID, from, to)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"doctor_id":  doctorID,
		"start_date": from.Format("2006-01-02"),
		"end_date":   to.Format("2006-01-02"),
		"slots":      slots,
	})
}

type scheduleRequest struct {
	Referral        uuid.UUID `json:"referral"`
	AppointmentDate string    `json:"appointment_date"`
	Notes           string    `json:"notes"`
}

func (h *Handler) ScheduleAppointment(c echo.Context) error {
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Referral == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "referral is required")
	}
	at, err := ParseAppointmentTime(req.AppointmentDate, h.svc.loc)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.ScheduleAppointment(c.Request().Context(), req.Referral, at, callerID(c), req.Notes)
	if err != nil {
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) UpcomingAppointments(c echo.Context) error {
	ctx := c.Request().Context()
	items, err := h.svc.Upcoming(ctx, callerID(c), auth.RolesFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, listOf(items))
}

func (h *Handler) CompleteAppointment(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	a, err := h.svc.CompleteAppointment(ctx, id, callerID(c), auth.RolesFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	a, err := h.svc.CancelAppointment(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}
