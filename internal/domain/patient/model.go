package patient

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/queue"
	"github.com/clinic/clinic/pkg/dates"
)

var ErrNotFound = errors.New("patient not found")

const maxPhoneDigits = 11

type Patient struct {
	ID            uuid.UUID  `json:"id"`
	PatientCode   string     `json:"patient_code"`
	FirstName     string     `json:"first_name"`
	MiddleName    string     `json:"middle_name"`
	LastName      string     `json:"last_name"`
	Email         string     `json:"email"`
	PhoneNumber   string     `json:"phone_number"`
	DateOfBirth   dates.Date `json:"date_of_birth"`
	StreetAddress string     `json:"street_address"`
	Barangay      string     `json:"barangay"`
	MunicipalCity string     `json:"municipal_city"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (p *Patient) FullName() string {
	parts := []string{p.FirstName, p.MiddleName, p.LastName}
	var out []string
	for _, s := range parts {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, " ")
}

func (p *Patient) normalize() {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.MiddleName = strings.TrimSpace(p.MiddleName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.PhoneNumber = strings.TrimSpace(p.PhoneNumber)
}

// Validate checks the fields required for a new or updated record.
func (p *Patient) Validate(now time.Time) error {
	if p.FirstName == "" {
		return fmt.Errorf("first_name is required")
	}
	if p.LastName == "" {
		return fmt.Errorf("last_name is required")
	}
	if p.DateOfBirth.IsZero() {
		return fmt.Errorf("date_of_birth is required")
	}
	if p.DateOfBirth.After(now) {
		return fmt.Errorf("date_of_birth cannot be in the future")
	}
	if len(p.PhoneNumber) > maxPhoneDigits {
		return fmt.Errorf("phone_number must be at most %d digits", maxPhoneDigits)
	}
	for _, r := range p.PhoneNumber {
		if !unicode.IsDigit(r) {
			return fmt.Errorf("phone_number must contain digits only")
		}
	}
	return nil
}

// View is a patient decorated for list and search screens.
type View struct {
	*Patient
	Age             int          `json:"age"`
	LatestComplaint string       `json:"latest_complaint,omitempty"`
	LatestQueue     *queue.Entry `json:"latest_queue,omitempty"`
}

// RegisterInput is the registration form. A non-empty PatientCode
// re-admits an existing patient and ignores the personal fields.
type RegisterInput struct {
	Patient
	PatientCode   string `json:"patient_code"`
	PriorityLevel string `json:"priority_level"`
	Complaint     string `json:"complaint"`
}

type RegisterResult struct {
	Message      string         `json:"message"`
	Patient      *Patient       `json:"patient"`
	QueueEntry   *queue.Entry   `json:"queue_entry,omitempty"`
	QueueEntries []*queue.Entry `json:"queue_entries,omitempty"`
}
