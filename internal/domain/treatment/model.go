package treatment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/pkg/dates"
)

const (
	PrescriptionPending   = "pending"
	PrescriptionDispensed = "dispensed"
	PrescriptionDeclined  = "declined"
)

var (
	ErrNotFound             = errors.New("treatment not found")
	ErrPrescriptionNotFound = errors.New("prescription not found")
	ErrAlreadyProcessed     = errors.New("prescription has already been processed")
)

// InputError reports a malformed treatment or dispense request.
type InputError struct {
	msg string
}

func (e *InputError) Error() string { return e.msg }

func invalidf(format string, args ...interface{}) error {
	return &InputError{msg: fmt.Sprintf(format, args...)}
}

// MedicineError reports a prescription line whose medicine cannot be
// dispensed.
type MedicineError struct {
	Ref     string
	Expired bool
}

func (e *MedicineError) Error() string {
	if e.Expired {
		return e.Ref + " is expired!"
	}
	return "Medicine " + e.Ref + " not found"
}

// DoctorInfo names the doctor who recorded a treatment.
type DoctorInfo struct {
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
}

type Treatment struct {
	ID             uuid.UUID       `json:"id"`
	PatientID      uuid.UUID       `json:"patient_id"`
	DoctorID       *uuid.UUID      `json:"doctor_id"`
	QueueEntryID   *uuid.UUID      `json:"queue_entry_id"`
	TreatmentNotes string          `json:"treatment_notes"`
	CreatedAt      time.Time       `json:"created_at"`
	DoctorInfo     *DoctorInfo     `json:"doctor_info,omitempty"`
	Diagnoses      []*Diagnosis    `json:"diagnoses"`
	Prescriptions  []*Prescription `json:"prescriptions"`
}

type Diagnosis struct {
	ID          uuid.UUID  `json:"id"`
	PatientID   uuid.UUID  `json:"patient_id"`
	TreatmentID *uuid.UUID `json:"treatment_id"`
	Code        string     `json:"diagnosis_code"`
	Description string     `json:"diagnosis_description"`
	Date        time.Time  `json:"diagnosis_date"`
}

// Medication is the medicine summary embedded in prescription reads.
type Medication struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Strength string    `json:"strength"`
	Stocks   int       `json:"stocks"`
}

type Prescription struct {
	ID          uuid.UUID   `json:"id"`
	PatientID   uuid.UUID   `json:"patient_id"`
	PatientName string      `json:"patient_name,omitempty"`
	TreatmentID *uuid.UUID  `json:"treatment_id"`
	MedicineID  uuid.UUID   `json:"medicine_id"`
	Medication  *Medication `json:"medication,omitempty"`
	Dosage      string      `json:"dosage"`
	Frequency   string      `json:"frequency"`
	Quantity    int         `json:"quantity"`
	StartDate   *dates.Date `json:"start_date"`
	EndDate     *dates.Date `json:"end_date"`
	Note        string      `json:"note"`
	Status      string      `json:"status"`
	DispensedAt *time.Time  `json:"dispensed_at"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Quantity accepts both JSON numbers and numeric strings, as sent by the
// treatment form.
type Quantity int

func (q *Quantity) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*q = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("quantity must be a whole number")
	}
	*q = Quantity(n)
	return nil
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(q))
}

type DiagnosisInput struct {
	Code        string      `json:"diagnosis_code"`
	Description string      `json:"diagnosis_description"`
	Date        *dates.Date `json:"diagnosis_date"`
}

// PrescriptionInput names its medicine by id or by name.
type PrescriptionInput struct {
	MedicineID string      `json:"medicine_id"`
	Medication string      `json:"medication"`
	Dosage     string      `json:"dosage"`
	Frequency  string      `json:"frequency"`
	Quantity   Quantity    `json:"quantity"`
	StartDate  *dates.Date `json:"start_date"`
	EndDate    *dates.Date `json:"end_date"`
	Note       string      `json:"note"`
}

// MedicineRef returns the id when given, otherwise the medicine name.
func (p PrescriptionInput) MedicineRef() string {
	if ref := strings.TrimSpace(p.MedicineID); ref != "" {
		return ref
	}
	return strings.TrimSpace(p.Medication)
}

type CreateInput struct {
	TreatmentNotes string              `json:"treatment_notes"`
	Diagnoses      []DiagnosisInput    `json:"diagnoses"`
	Prescriptions  []PrescriptionInput `json:"prescriptions"`
}

func (in *CreateInput) Validate() error {
	for i, d := range in.Diagnoses {
		if strings.TrimSpace(d.Description) == "" {
			return invalidf("diagnoses[%d].diagnosis_description is required", i)
		}
	}
	for i, p := range in.Prescriptions {
		if p.MedicineRef() == "" {
			return invalidf("prescriptions[%d].medication is required", i)
		}
		if p.Quantity < 0 {
			return invalidf("prescriptions[%d].quantity must be positive", i)
		}
		if p.StartDate != nil && p.EndDate != nil && !p.StartDate.IsZero() && !p.EndDate.IsZero() &&
			p.EndDate.Before(p.StartDate.Time) {
			return invalidf("prescriptions[%d].end_date is before start_date", i)
		}
	}
	return nil
}

// History is a patient's treatments split into the latest and the rest.
type History struct {
	LatestTreatment   *Treatment   `json:"latest_treatment"`
	OldTreatments     []*Treatment `json:"old_treatments"`
	LatestTreatmentID *uuid.UUID   `json:"latest_treatment_id"`
}

// NewHistory splits treatments, which must be ordered newest first.
func NewHistory(treatments []*Treatment) *History {
	h := &History{OldTreatments: []*Treatment{}}
	if len(treatments) == 0 {
		return h
	}
	h.LatestTreatment = treatments[0]
	h.LatestTreatmentID = &treatments[0].ID
	h.OldTreatments = append(h.OldTreatments, treatments[1:]...)
	return h
}

// QueueData is the visit a treatment summary belongs to.
type QueueData struct {
	QueueNumber   int64  `json:"queue_number"`
	PriorityLevel string `json:"priority_level"`
	Status        string `json:"status"`
	Complaint     string `json:"complaint"`
}

type PatientSummary struct {
	ID          uuid.UUID  `json:"id"`
	PatientCode string     `json:"patient_code"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	QueueData   *QueueData `json:"queue_data"`
}

// Summary is the latest treatment of one patient.
type Summary struct {
	ID             uuid.UUID      `json:"id"`
	TreatmentNotes string         `json:"treatment_notes"`
	CreatedAt      time.Time      `json:"created_at"`
	DoctorName     string         `json:"doctor_name"`
	Patient        PatientSummary `json:"patient"`
}

// DispenseItem confirms or declines one pending prescription.
type DispenseItem struct {
	ID        uuid.UUID `json:"id"`
	Confirmed bool      `json:"confirmed"`
}

type DispenseResult struct {
	Dispensed int `json:"dispensed"`
	Declined  int `json:"declined"`
}
