package queue

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	secretary := api.Group("", auth.RequireRole(auth.RoleSecretary))
	secretary.GET("/queue/registration", h.RegistrationBoard)
	secretary.PATCH("/queue/patients/:patient_id/accept", h.Accept)

	staff := api.Group("", auth.RequireRole(auth.MedicalStaff...))
	staff.GET("/queue/assessment", h.AssessmentBoard)
	staff.GET("/queue/snapshot", h.Snapshot)
	staff.PATCH("/queue/entries/:id/start-assessment", h.StartAssessment)
	staff.GET("/queue/assessments/:patient_id/:queue_number", h.GetAssessment)
	staff.POST("/queue/assessments/:patient_id/:queue_number", h.SubmitAssessment)
	staff.GET("/patients/:id/assessment", h.LatestAssessment)

	doctors := api.Group("", auth.RequireRole(auth.Doctors...))
	doctors.GET("/queue/treatment", h.TreatmentBoard)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAssessmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func (h *Handler) board(c echo.Context, stage Stage) error {
	board, err := h.svc.Board(c.Request().Context(), stage)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, board)
}

func (h *Handler) RegistrationBoard(c echo.Context) error { return h.board(c, StageRegistration) }
func (h *Handler) AssessmentBoard(c echo.Context) error   { return h.board(c, StageAssessment) }
func (h *Handler) TreatmentBoard(c echo.Context) error    { return h.board(c, StageTreatment) }

func (h *Handler) Snapshot(c echo.Context) error {
	board, err := h.svc.Snapshot(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, board)
}

func (h *Handler) Accept(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	e, err := h.svc.Accept(c.Request().Context(), patientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "no queue entry for patient")
		}
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) StartAssessment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	e, err := h.svc.StartAssessment(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, e)
}

func visitParams(c echo.Context) (uuid.UUID, int64, error) {
	patientID, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return uuid.Nil, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	number, err := strconv.ParseInt(c.Param("queue_number"), 10, 64)
	if err != nil {
		return uuid.Nil, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid queue_number")
	}
	return patientID, number, nil
}

func (h *Handler) GetAssessment(c echo.Context) error {
	patientID, number, err := visitParams(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAssessment(c.Request().Context(), patientID, number)
	if err != nil {
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) SubmitAssessment(c echo.Context) error {
	patientID, number, err := visitParams(c)
	if err != nil {
		return err
	}
	var a Assessment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SubmitAssessment(c.Request().Context(), patientID, number, &a); err != nil {
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":      "Assessment created successfully",
		"queue_number": number,
	})
}

func (h *Handler) LatestAssessment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.LatestAssessment(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}
