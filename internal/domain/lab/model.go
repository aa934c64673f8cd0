package lab

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending   = "Pending"
	StatusCompleted = "Completed"

	// TestOther needs a custom_test description.
	TestOther = "Other"
)

var (
	ErrRequestNotFound  = errors.New("lab request not found")
	ErrResultNotFound   = errors.New("lab result not found")
	ErrAlreadyCompleted = errors.New("a result has already been uploaded for this request")
	ErrInvalidStatus    = errors.New("status must be Pending or Completed")
)

type Request struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	PatientName     string     `json:"patient_name"`
	TestName        string     `json:"test_name"`
	CustomTest      string     `json:"custom_test"`
	Status          string     `json:"status"`
	RequestedBy     *uuid.UUID `json:"requested_by"`
	RequestedByName string     `json:"requested_by_name"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Result          *Result    `json:"result"`
}

// DisplayName is the custom test description for "Other" requests and the
// test name otherwise.
func (r *Request) DisplayName() string {
	if r.TestName == TestOther && r.CustomTest != "" {
		return r.CustomTest
	}
	return r.TestName
}

func (r *Request) Validate() error {
	r.TestName = strings.TrimSpace(r.TestName)
	r.CustomTest = strings.TrimSpace(r.CustomTest)
	switch {
	case r.PatientID == uuid.Nil:
		return errors.New("patient is required")
	case r.TestName == "":
		return errors.New("test_name is required")
	case strings.EqualFold(r.TestName, TestOther) && r.CustomTest == "":
		return errors.New("custom_test is required when test_name is Other")
	}
	if strings.EqualFold(r.TestName, TestOther) {
		r.TestName = TestOther
	}
	return nil
}

// Submitter is the staff member who uploaded a result.
type Submitter struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

type Result struct {
	ID           uuid.UUID  `json:"id"`
	LabRequestID uuid.UUID  `json:"lab_request_id"`
	PatientID    uuid.UUID  `json:"patient_id"`
	TestName     string     `json:"test_name,omitempty"`
	BlobID       string     `json:"-"`
	FileName     string     `json:"file_name"`
	ContentType  string     `json:"content_type"`
	SubmittedBy  *uuid.UUID `json:"-"`
	Submitter    *Submitter `json:"submitted_by"`
	ImageURL     string     `json:"image_url"`
	UploadedAt   time.Time  `json:"uploaded_at"`
}

// NormalizeStatus maps a ?status= filter onto the stored value. Empty means
// no filter.
func NormalizeStatus(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "pending":
		return StatusPending, nil
	case "completed":
		return StatusCompleted, nil
	}
	return "", ErrInvalidStatus
}
