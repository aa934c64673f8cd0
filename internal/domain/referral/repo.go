package referral

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ReferralRepository interface {
	Create(ctx context.Context, r *Referral) error
	GetByID(ctx context.Context, id uuid.UUID) (*Referral, error)
	// GetForUpdate reads the referral and, inside a transaction, holds its
	// row lock until commit.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Referral, error)
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Referral, error)
	ListByStatus(ctx context.Context, status string) ([]*Referral, error)
	// ListForDoctor returns referrals the doctor sent or received, newest
	// first. pastOnly leaves out pending ones.
	ListForDoctor(ctx context.Context, doctorID uuid.UUID, pastOnly bool) ([]*Referral, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, appointmentID *uuid.UUID) error
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// BookedTimes returns start times of Scheduled appointments for the
	// doctor within [from, to).
	BookedTimes(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error)
	// ListUpcoming returns Scheduled appointments from the given time on.
	// A nil doctorID lists every doctor.
	ListUpcoming(ctx context.Context, doctorID *uuid.UUID, from time.Time) ([]*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}
