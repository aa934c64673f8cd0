package report

import (
	"context"
	"time"
)

// Repository runs the read-only aggregate queries behind the reports. from
// is inclusive and to exclusive.
type Repository interface {
	ListVisits(ctx context.Context, from, to time.Time) ([]Visit, error)
	ListLabRequests(ctx context.Context, from, to time.Time) ([]LabDetail, error)
	ListDiagnoses(ctx context.Context, from, to time.Time) ([]DiagnosisRow, error)
	FrequentMedicines(ctx context.Context, from, to time.Time, limit int) ([]MedicineCount, error)
	// ListPatients lists patients registered in [from, to). Zero bounds are
	// open.
	ListPatients(ctx context.Context, from, to time.Time) ([]PatientRow, error)
}
