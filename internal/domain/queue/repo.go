package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EntryRepository interface {
	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	GetByPatientAndNumber(ctx context.Context, patientID uuid.UUID, number int64) (*Entry, error)
	Latest(ctx context.Context, patientID uuid.UUID) (*Entry, error)
	Earliest(ctx context.Context, patientID uuid.UUID) (*Entry, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Entry, error)
	// ListBoard returns entries in status, restricted to one queue date when
	// day is non-nil.
	ListBoard(ctx context.Context, status string, day *time.Time) ([]*BoardEntry, error)
	// ListBetween returns every entry with a queue date in [from, to).
	ListBetween(ctx context.Context, from, to time.Time) ([]*BoardEntry, error)
}

type AssessmentRepository interface {
	Create(ctx context.Context, a *Assessment) error
	GetByEntry(ctx context.Context, entryID uuid.UUID) (*Assessment, error)
	Latest(ctx context.Context, patientID uuid.UUID) (*Assessment, error)
}
