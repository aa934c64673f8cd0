package treatment

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/domain/medicine"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/queue"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	doctors := api.Group("", auth.RequireRole(auth.Doctors...))
	doctors.POST("/treatments/:patient_id/:queue_number", h.CreateTreatment)
	doctors.GET("/treatments", h.ListTreatments)
	doctors.GET("/patients/:id/treatments", h.PatientHistory)
	doctors.GET("/patients/:id/treatment-detail", h.Detail)
	doctors.GET("/patients/:id/diagnoses", h.ListDiagnoses)

	staff := api.Group("", auth.RequireRole(auth.MedicalStaff...))
	staff.GET("/prescriptions/pending", h.PendingPrescriptions)

	secretary := api.Group("", auth.RequireRole(auth.RoleSecretary))
	secretary.POST("/prescriptions/dispense", h.Dispense)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, queue.ErrNotFound), errors.Is(err, patient.ErrNotFound),
		errors.Is(err, ErrNotFound), errors.Is(err, ErrPrescriptionNotFound), errors.Is(err, medicine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrInvalidTransition), errors.Is(err, ErrAlreadyProcessed):
		return http.StatusConflict
	}
	var inputErr *InputError
	var medErr *MedicineError
	switch {
	case errors.As(err, &inputErr), errors.As(err, &medErr), errors.Is(err, medicine.ErrInsufficientStock):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func patientParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func (h *Handler) CreateTreatment(c echo.Context) error {
	patientID, err := patientParam(c, "patient_id")
	if err != nil {
		return err
	}
	queueNumber, err := strconv.ParseInt(c.Param("queue_number"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid queue_number")
	}
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	doctorID, _ := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))

	t, err := h.svc.Create(c.Request().Context(), patientID, queueNumber, doctorID, in)
	if err != nil {
		var medErr *MedicineError
		if errors.As(err, &medErr) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": medErr.Error()})
		}
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":   "Treatment created successfully",
		"treatment": t,
	})
}

func (h *Handler) ListTreatments(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListLatestPerPatient(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}

func (h *Handler) PatientHistory(c echo.Context) error {
	id, err := patientParam(c, "id")
	if err != nil {
		return err
	}
	history, err := h.svc.PatientHistory(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, history)
}

func (h *Handler) Detail(c echo.Context) error {
	id, err := patientParam(c, "id")
	if err != nil {
		return err
	}
	detail, err := h.svc.Detail(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, patient.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *Handler) ListDiagnoses(c echo.Context) error {
	id, err := patientParam(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListDiagnoses(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Diagnosis{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) PendingPrescriptions(c echo.Context) error {
	items, err := h.svc.PendingPrescriptions(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Prescription{}
	}
	return c.JSON(http.StatusOK, items)
}

type dispenseRequest struct {
	Items []DispenseItem `json:"items"`
}

func (h *Handler) Dispense(c echo.Context) error {
	var req dispenseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.ConfirmDispense(c.Request().Context(), req.Items)
	if err != nil {
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, res)
}
