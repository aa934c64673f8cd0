package lab

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/blobstore"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	doctors := api.Group("", auth.RequireRole(auth.Doctors...))
	doctors.POST("/lab/requests", h.CreateRequest)

	staff := api.Group("", auth.RequireRole(auth.MedicalStaff...))
	staff.GET("/lab/requests", h.ListRequests)
	staff.POST("/lab/results", h.UploadResult)
	staff.GET("/patients/:id/lab-results", h.ListResults)
	staff.GET("/lab/results/:id/download", h.Download)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrRequestNotFound), errors.Is(err, ErrResultNotFound), errors.Is(err, patient.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyCompleted):
		return http.StatusConflict
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, blobstore.ErrInvalidContentType):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusBadRequest
	}
}

type requestInput struct {
	Patient    string  `json:"patient"`
	PatientID  string  `json:"patient_id"`
	TestName   string  `json:"test_name"`
	CustomTest *string `json:"custom_test"`
}

func (in requestInput) toRequest() (*Request, error) {
	ref := in.PatientID
	if ref == "" {
		ref = in.Patient
	}
	id, err := uuid.Parse(ref)
	if err != nil {
		return nil, errors.New("patient is required")
	}
	req := &Request{PatientID: id, TestName: in.TestName}
	if in.CustomTest != nil {
		req.CustomTest = *in.CustomTest
	}
	return req, nil
}

func (h *Handler) CreateRequest(c echo.Context) error {
	var in requestInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req, err := in.toRequest()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	requestedBy, _ := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err := h.svc.CreateRequest(c.Request().Context(), req, requestedBy); err != nil {
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, req)
}

func (h *Handler) ListRequests(c echo.Context) error {
	items, err := h.svc.ListRequests(c.Request().Context(), c.QueryParam("status"))
	if err != nil {
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	if items == nil {
		items = []*Request{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UploadResult(c echo.Context) error {
	requestID, err := uuid.Parse(c.FormValue("lab_request"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "lab_request is required")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	if fh.Size > blobstore.MaxFileSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, blobstore.ErrFileTooLarge.Error())
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()

	submittedBy, _ := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	res, err := h.svc.UploadResult(c.Request().Context(), requestID, Upload{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Content:     f,
	}, submittedBy)
	if err != nil {
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListResults(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.svc.ListResults(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	if items == nil {
		items = []*Result{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Download(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rc, res, err := h.svc.Download(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", res.FileName))
	c.Response().Header().Set(echo.HeaderContentType, res.ContentType)
	c.Response().WriteHeader(http.StatusOK)
	_, err = io.Copy(c.Response(), rc)
	return err
}
