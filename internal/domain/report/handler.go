package report

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/export"
)

const (
	defaultLimit = 10
	maxLimit     = 100

	mimePDF  = "application/pdf"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimePNG  = "image/png"
)

type Handler struct {
	svc   *Service
	cache echo.MiddlewareFunc
}

// NewHandler wires the report routes. cache may be nil.
func NewHandler(svc *Service, cache echo.MiddlewareFunc) *Handler {
	return &Handler{svc: svc, cache: cache}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	mw := []echo.MiddlewareFunc{auth.RequireRole(auth.Doctors...)}
	if h.cache != nil {
		mw = append(mw, h.cache)
	}
	g := api.Group("/reports", mw...)
	g.GET("/monthly-visits", h.MonthlyVisits)
	g.GET("/monthly-lab-results", h.MonthlyLabResults)
	g.GET("/common-diseases", h.CommonDiseases)
	g.GET("/common-diseases/monthly-details", h.DiseaseDetails)
	g.GET("/frequent-medicines", h.FrequentMedicines)
	g.GET("/total-patients", h.TotalPatients)
	g.GET("/visits/monthly-details", h.VisitDetails)
	g.GET("/visits/summary", h.VisitSummary)
	g.GET("/visits/export.xlsx", h.VisitsWorkbook)
	g.GET("/visits/chart.png", h.VisitsChart)
	g.GET("/lab-results/monthly-details", h.LabDetails)
	g.GET("/lab-results/export.pdf", h.LabPDF)
	g.GET("/queue/export.pdf", h.QueuePDF)
	g.GET("/patient/:id", h.PatientReport)
	g.GET("/patient/:id/export.pdf", h.PatientPDF)
}

func (h *Handler) rangeParam(c echo.Context) (Range, error) {
	r, err := h.svc.Range(c.QueryParam("start_date"), c.QueryParam("end_date"))
	if err != nil {
		return Range{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return r, nil
}

func (h *Handler) monthParam(c echo.Context) (Range, error) {
	r, err := h.svc.MonthRange(c.QueryParam("month"))
	if err != nil {
		return Range{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return r, nil
}

func limitParam(c echo.Context) int {
	n, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

func serverError(err error) error {
	if errors.Is(err, patient.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func attachment(c echo.Context, name, contentType string, body []byte) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, contentType, body)
}

func (h *Handler) MonthlyVisits(c echo.Context) error {
	r, err := h.rangeParam(c)
	if err != nil {
		return err
	}
	out, err := h.svc.MonthlyVisits(c.Request().Context(), r)
	if err != nil {
		return serverError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) MonthlyLabResults(c echo.Context) error {
	r, err := h.rangeParam(c)
	if err != nil {
		return err
	}
	out, err := h.svc.MonthlyLabResults(c.Request().Context(), r)
	if err != nil {
		return serverError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) CommonDiseases(c echo.Context) error {
	r, err := h.rangeParam(c)
	if err != nil {
		return err
	}
	out, err := h.svc.CommonDiseases(c.Request().Context(), r, limitParam(c))
	if err != nil {
		return serverError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) DiseaseDetails(c echo.Context) error {
	r, err := h.rangeParam(c)
	if err != nil {
		return err
	}
	out, err := h.svc.DiseaseDetails(c.Request().Context(), r)
	if err != nil {
		return serverError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) FrequentMedicines(c echo.Context) error {
	r, err := h.rangeParam(c)
	if err != nil {
		return err
	}
	out, err := h.svc.FrequentMedicines(c.Request().Context(), r, limitParam(c))
	if err != nil {
		return serverError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"medicines": orEmpty(out)})
}

func (h *Handler) TotalPatients(c echo.Context) error {
	r, err := h.rangeParam(c)
	if err != nil {
		return err
	}
	out, err := h.svc.TotalPatients(c.Request().Context(), r)
	if err != nil {
		return serverError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"patients": orEmpty(out), "count": len(out)})
}

func (h *Handler) VisitDetails(c echo.Context) error {
	r, err := h.rangeParam(c)
	if err != nil {
		return err
	}
	out, err := h.svc.VisitDetails(c.Request().Context(), r)
	if err != nil {
		return serverError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) VisitSummary(c echo.Context) error {
	r, err := h.rangeParam(c)
	if err != nil {
		return err
	}
	out, err := h.svc.VisitSummary(c.Request().Context(), r)
	if err != nil {
		return serverError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) LabDetails(c echo.Context) error {
	r, err := h.rangeParam(c)
	if err != nil {
		return err
	}
	out, err := h.svc.LabDetails(c.Request().Context(), r)
	if err != nil {
		return serverError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) PatientReport(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	out, err := h.svc.PatientReport(c.Request().Context(), id)
	if err != nil {
		return serverError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) QueuePDF(c echo.Context) error {
	r, err := h.monthParam(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	name, err := h.svc.QueuePDF(c.Request().Context(), r, &buf)
	if err != nil {
		return serverError(err)
	}
	return attachment(c, name, mimePDF, buf.Bytes())
}

func (h *Handler) LabPDF(c echo.Context) error {
	r, err := h.monthParam(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	name, err := h.svc.LabPDF(c.Request().Context(), r, &buf)
	if err != nil {
		return serverError(err)
	}
	return attachment(c, name, mimePDF, buf.Bytes())
}

func (h *Handler) PatientPDF(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var buf bytes.Buffer
	name, err := h.svc.PatientPDF(c.Request().Context(), id, &buf)
	if err != nil {
		return serverError(err)
	}
	return attachment(c, name, mimePDF, buf.Bytes())
}

func (h *Handler) VisitsWorkbook(c echo.Context) error {
	r, err := h.rangeParam(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := h.svc.VisitsWorkbook(c.Request().Context(), r, &buf); err != nil {
		return serverError(err)
	}
	name := fmt.Sprintf("patient-visits-%s-to-%s.xlsx", r.Start.Format("2006-01"), r.End.Format("2006-01"))
	return attachment(c, name, mimeXLSX, buf.Bytes())
}

func (h *Handler) VisitsChart(c echo.Context) error {
	r, err := h.rangeParam(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := h.svc.VisitsChart(c.Request().Context(), r, &buf); err != nil {
		if errors.Is(err, export.ErrNoData) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return serverError(err)
	}
	return c.Blob(http.StatusOK, mimePNG, buf.Bytes())
}
