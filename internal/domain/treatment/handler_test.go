package treatment

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/domain/medicine"
	"github.com/clinic/clinic/internal/domain/queue"
	"github.com/clinic/clinic/internal/platform/auth"
)

func postTreatment(t *testing.T, f *fixture, queueNumber, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithUser(req.Context(), uuid.NewString(), []string{auth.RoleDoctor}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("patient_id", "queue_number")
	c.SetParamValues(f.patientID.String(), queueNumber)
	return rec, NewHandler(f.svc).CreateTreatment(c)
}

func TestHandler_CreateTreatment(t *testing.T) {
	f := newFixture()
	f.medicines.add("Loperamide", 10, time.Time{})

	body := `{"treatment_notes":"hydrate","diagnoses":[{"diagnosis_code":"A09","diagnosis_description":"Gastroenteritis","diagnosis_date":"2024-03-10"}],
		"prescriptions":[{"medication":"Loperamide","dosage":"2mg","frequency":"after each stool","quantity":"6","start_date":"2024-03-10","end_date":"2024-03-12"}]}`
	rec, err := postTreatment(t, f, "7", body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var res struct {
		Message   string    `json:"message"`
		Treatment Treatment `json:"treatment"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Message != "Treatment created successfully" {
		t.Errorf("unexpected message %q", res.Message)
	}
	if len(res.Treatment.Prescriptions) != 1 || res.Treatment.Prescriptions[0].Quantity != 6 {
		t.Errorf("unexpected prescriptions %+v", res.Treatment.Prescriptions)
	}
	if res.Treatment.Prescriptions[0].EndDate.String() != "2024-03-12" {
		t.Errorf("unexpected end date %v", res.Treatment.Prescriptions[0].EndDate)
	}
}

func TestHandler_CreateTreatment_MissingMedicine(t *testing.T) {
	f := newFixture()
	rec, err := postTreatment(t, f, "7", `{"prescriptions":[{"medication":"Ghost"}]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error":"Medicine Ghost not found"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_CreateTreatment_BadQueueNumber(t *testing.T) {
	f := newFixture()
	_, err := postTreatment(t, f, "seven", `{}`)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_CreateTreatment_UnknownVisit(t *testing.T) {
	f := newFixture()
	_, err := postTreatment(t, f, "42", `{}`)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_Dispense_AlreadyProcessed(t *testing.T) {
	f := newFixture()
	f.medicines.add("Zinc", 10, time.Time{})
	tr := createWithPrescriptions(t, f, PrescriptionInput{Medication: "Zinc", Quantity: 1})
	f.repo.prescriptions[tr.Prescriptions[0].ID].Status = PrescriptionDeclined

	e := echo.New()
	body := `{"items":[{"id":"` + tr.Prescriptions[0].ID.String() + `","confirmed":true}]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := NewHandler(f.svc).Dispense(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestQuantity_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    Quantity
		wantErr bool
	}{
		{`3`, 3, false},
		{`"12"`, 12, false},
		{`""`, 0, false},
		{`null`, 0, false},
		{`"two"`, 0, true},
	}
	for _, tt := range tests {
		var q Quantity
		err := json.Unmarshal([]byte(tt.in), &q)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: unexpected error %v", tt.in, err)
		}
		if err == nil && q != tt.want {
			t.Errorf("%s: got %d, want %d", tt.in, q, tt.want)
		}
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown visit", queue.ErrNotFound, http.StatusNotFound},
		{"unknown prescription", ErrPrescriptionNotFound, http.StatusNotFound},
		{"unknown medicine", medicine.ErrNotFound, http.StatusNotFound},
		{"already processed", fmt.Errorf("%w: abc", ErrAlreadyProcessed), http.StatusConflict},
		{"bad transition", queue.ErrInvalidTransition, http.StatusConflict},
		{"validation", invalidf("items is required"), http.StatusBadRequest},
		{"short stock", fmt.Errorf("%w for Amoxicillin", medicine.ErrInsufficientStock), http.StatusBadRequest},
		{"expired medicine", &MedicineError{Ref: "Cetirizine", Expired: true}, http.StatusBadRequest},
		{"database failure", fmt.Errorf("create treatment: %w", errors.New("connection reset")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorStatus(tt.err); got != tt.want {
				t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
