package treatment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, t *Treatment) error
	CreateDiagnosis(ctx context.Context, d *Diagnosis) error
	CreatePrescription(ctx context.Context, p *Prescription) error
	// ListByPatient returns treatments newest first with their diagnoses and
	// prescriptions loaded.
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Treatment, error)
	ListLatestPerPatient(ctx context.Context, limit, offset int) ([]*Summary, int, error)
	ListDiagnoses(ctx context.Context, patientID uuid.UUID) ([]*Diagnosis, error)
	ListPendingPrescriptions(ctx context.Context) ([]*Prescription, error)
	// GetPrescriptionForUpdate locks the row when called inside a transaction.
	GetPrescriptionForUpdate(ctx context.Context, id uuid.UUID) (*Prescription, error)
	SetPrescriptionStatus(ctx context.Context, id uuid.UUID, status string, dispensedAt *time.Time) error
}
