package referral

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
)

func newContext(method, target, body string, userID uuid.UUID, role string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req = req.WithContext(auth.WithUser(req.Context(), userID.String(), []string{role}))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_Availability_BadDate(t *testing.T) {
	f := newFixture()
	c, rec := newContext(http.MethodGet, "/?start_date=2024/05/06", "", f.secretary, auth.RoleSecretary)
	c.SetParamNames("id")
	c.SetParamValues(f.receiving.String())

	if err := NewHandler(f.svc).Availability(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid date format. Use YYYY-MM-DD") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_Availability(t *testing.T) {
	f := newFixture()
	c, rec := newContext(http.MethodGet, "/?start_date=2024-05-06&end_date=2024-05-06", "", f.secretary, auth.RoleSecretary)
	c.SetParamNames("id")
	c.SetParamValues(f.receiving.String())

	if err := NewHandler(f.svc).Availability(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res struct {
		Slots []Slot `json:"slots"`
	}
	json.Unmarshal(rec.Body.Bytes(), &res)
	if len(res.Slots) != 4 {
		t.Errorf("expected 4 slots, got %d", len(res.Slots))
	}
}

func TestHandler_CreateAndDecline(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)

	body := `{"patient":"` + f.patientID.String() + `","receiving_doctor":"` + f.receiving.String() + `","reason":"ECG review"}`
	c, rec := newContext(http.MethodPost, "/api/v1/referrals", body, f.referring, auth.RoleDoctor)
	if err := h.CreateReferral(c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var created Referral
	json.Unmarshal(rec.Body.Bytes(), &created)

	c, _ = newContext(http.MethodPatch, "/", "", f.referring, auth.RoleDoctor)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())
	err := h.DeclineReferral(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}

	c, rec = newContext(http.MethodPatch, "/", "", f.receiving, auth.RoleOnCallDoctor)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())
	if err := h.DeclineReferral(c); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"status":"cancelled"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_ScheduleAppointment(t *testing.T) {
	f := newFixture()
	r := f.refer(t)
	body := `{"referral":"` + r.ID.String() + `","appointment_date":"2024-05-06T10:30"}`
	c, rec := newContext(http.MethodPost, "/api/v1/appointments", body, f.secretary, auth.RoleSecretary)

	if err := NewHandler(f.svc).ScheduleAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var res ScheduleResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.AppointmentID == uuid.Nil {
		t.Error("expected appointment id")
	}

	c, _ = newContext(http.MethodPost, "/api/v1/appointments", body, f.secretary, auth.RoleSecretary)
	err := NewHandler(f.svc).ScheduleAppointment(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Fatalf("expected 409 on rebooking, got %v", err)
	}
}
