// Package report aggregates clinic activity into monthly reports and renders
// them as JSON, PDF, XLSX and PNG.
package report

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/pkg/dates"
)

var ErrInvalidDate = errors.New("dates must be in YYYY-MM-DD format")

// Range is an inclusive span of calendar days in the clinic timezone.
// Explicit is set when either bound came from the request.
type Range struct {
	Start    time.Time
	End      time.Time
	Explicit bool
}

// EndExclusive is the first instant after the range.
func (r Range) EndExclusive() time.Time {
	return r.End.AddDate(0, 0, 1)
}

type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

type DiseaseCount struct {
	Description string `json:"diagnosis_description"`
	Count       int    `json:"count"`
}

type MedicineCount struct {
	Name  string `json:"medication__name"`
	Count int    `json:"prescription_count"`
}

type PatientRow struct {
	ID          uuid.UUID  `json:"id"`
	PatientCode string     `json:"patient_code"`
	FirstName   string     `json:"first_name"`
	MiddleName  string     `json:"middle_name"`
	LastName    string     `json:"last_name"`
	DateOfBirth dates.Date `json:"date_of_birth"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Visit is one queue entry joined with its patient and first treatment.
type Visit struct {
	ID                 uuid.UUID  `json:"id"`
	PatientID          uuid.UUID  `json:"patient_id"`
	PatientCode        string     `json:"patient_code"`
	PatientName        string     `json:"patient_name"`
	PriorityLevel      string     `json:"priority_level"`
	Status             string     `json:"status"`
	Complaint          string     `json:"complaint"`
	QueueNumber        *int64     `json:"queue_number"`
	VisitDate          dates.Date `json:"visit_date"`
	VisitCreatedAt     *time.Time `json:"visit_created_at"`
	TreatmentCreatedAt *time.Time `json:"treatment_created_at"`
}

type MonthSummary struct {
	Month                string         `json:"month"`
	TotalVisits          int            `json:"total_visits"`
	AverageWaitMinutes   int            `json:"average_wait_minutes"`
	PriorityDistribution map[string]int `json:"priority_distribution"`
	StatusBreakdown      map[string]int `json:"status_breakdown"`
}

type Overall struct {
	TotalMonths           int     `json:"total_months"`
	TotalVisits           int     `json:"total_visits"`
	AverageVisitsPerMonth float64 `json:"average_visits_per_month"`
	PriorityCases         int     `json:"priority_cases"`
	Completed             int     `json:"completed"`
	CompletionRate        string  `json:"completion_rate"`
}

type VisitSummary struct {
	Months  []MonthSummary `json:"monthly_summaries"`
	Overall Overall        `json:"overall"`
}

// LabDetail is a lab request as listed in the monthly lab report.
type LabDetail struct {
	ID          uuid.UUID  `json:"id"`
	PatientName string     `json:"patient_name"`
	TestName    string     `json:"test_name"`
	Status      string     `json:"status"`
	RequestedBy string     `json:"requested_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UploadedAt  *time.Time `json:"uploaded_at"`
}

// DiagnosisRow is a single diagnosis used for monthly disease counts.
type DiagnosisRow struct {
	Description string
	Date        time.Time
}
