package medicine

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *Service, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc), svc, echo.New()
}

func TestHandler_SearchMedicines(t *testing.T) {
	h, svc, e := newTestHandler()
	svc.Create(context.Background(), &Medicine{Name: "Mefenamic Acid", Strength: "500mg", Stocks: 9})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/medicines/search?q=mef", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.SearchMedicines(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res struct {
		Medicine []SearchHit `json:"medicine"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(res.Medicine) != 1 || res.Medicine[0].Name != "Mefenamic Acid" {
		t.Errorf("unexpected hits %+v", res.Medicine)
	}
}

func TestHandler_SearchMedicines_BlankQuery(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/medicines/search", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.SearchMedicines(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"medicine":[]}` {
		t.Errorf("unexpected body %s", got)
	}
}

func TestHandler_CreateMedicine_Invalid(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/medicines", strings.NewReader(`{"stocks":3}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.CreateMedicine(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_DeleteMedicine_NotFound(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("3f1c7b4e-8c1a-4d36-9a59-0d6a5d1a2b11")

	err := h.DeleteMedicine(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func multipartUpload(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write([]byte(content))
	w.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/medicines/import", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestHandler_ImportMedicines(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(multipartUpload(t, "stock.csv", "Name,Stock\nAscorbic Acid,50\n"), rec)

	if err := h.ImportMedicines(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res ImportResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Created != 1 || len(res.Errors) != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestHandler_ImportMedicines_WrongExtension(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(multipartUpload(t, "stock.txt", "Name\nX\n"), rec)

	err := h.ImportMedicines(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
