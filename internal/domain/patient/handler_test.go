package patient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc), echo.New()
}

func TestHandler_RegisterPatient(t *testing.T) {
	h, e := newTestHandler()

	body := `{"first_name":"Rosa","last_name":"Reyes","date_of_birth":"1985-02-10","phone_number":"09181234567","priority_level":"Priority","complaint":"Fever"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients/register", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.RegisterPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var res map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res["message"] != "Patient registered successfully." {
		t.Errorf("unexpected message %v", res["message"])
	}
	p := res["patient"].(map[string]interface{})
	if p["date_of_birth"] != "1985-02-10" {
		t.Errorf("expected date only, got %v", p["date_of_birth"])
	}
	entry := res["queue_entry"].(map[string]interface{})
	if entry["complaint"] != "Fever" || entry["priority_level"] != "Priority" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestHandler_RegisterPatient_UnknownCode(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"patient_code":"NOPE0000"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.RegisterPatient(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_RegisterPatient_BadDate(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"first_name":"A","last_name":"B","date_of_birth":"10/02/1985"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.RegisterPatient(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_SearchPatients(t *testing.T) {
	h, e := newTestHandler()
	h.svc.Register(context.Background(), newInput("Carmen"))

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients/search?q=carm", nil), rec)
	if err := h.SearchPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Patients []map[string]interface{} `json:"patients"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Patients) != 1 || body.Patients[0]["first_name"] != "Carmen" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if _, ok := body.Patients[0]["age"]; !ok {
		t.Error("expected age in search result")
	}
}

func TestHandler_GetPatient_NotFound(t *testing.T) {
	h, e := newTestHandler()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetPatient(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_UpdatePatient(t *testing.T) {
	h, e := newTestHandler()
	res, _ := h.svc.Register(context.Background(), newInput("Old"))

	body := `{"first_name":"New","last_name":"Santos","date_of_birth":"1990-06-16"}`
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(res.Patient.ID.String())

	if err := h.UpdatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var p Patient
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.FirstName != "New" || p.PatientCode != res.Patient.PatientCode {
		t.Errorf("unexpected patient %+v", p)
	}
}

func TestHandler_LatestComplaint(t *testing.T) {
	h, e := newTestHandler()
	in := newInput("Comp")
	in.Complaint = "Rash"
	res, _ := h.svc.Register(context.Background(), in)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(res.Patient.ID.String())

	if err := h.LatestComplaint(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["complaint"] != "Rash" {
		t.Errorf("unexpected body %v", body)
	}
}
