package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/staff"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/dates"
)

// Staff looks up doctors and their weekly schedules.
type Staff interface {
	Get(ctx context.Context, id uuid.UUID) (*staff.User, error)
	ListSchedules(ctx context.Context, doctorID uuid.UUID) ([]*staff.Schedule, error)
}

type Patients interface {
	Get(ctx context.Context, id uuid.UUID) (*patient.View, error)
}

type Service struct {
	referrals    ReferralRepository
	appointments AppointmentRepository
	staff        Staff
	patients     Patients
	tx           db.TxRunner
	loc          *time.Location
	slotLen      time.Duration
	now          func() time.Time
	logger       zerolog.Logger
}

func NewService(referrals ReferralRepository, appointments AppointmentRepository, staffSvc Staff, patients Patients,
	tx db.TxRunner, loc *time.Location, slotLen time.Duration, logger zerolog.Logger) *Service {
	if tx == nil {
		tx = db.NoTx{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if slotLen <= 0 {
		slotLen = 30 * time.Minute
	}
	return &Service{
		referrals:    referrals,
		appointments: appointments,
		staff:        staffSvc,
		patients:     patients,
		tx:           tx,
		loc:          loc,
		slotLen:      slotLen,
		now:          time.Now,
		logger:       logger.With().Str("component", "referral").Logger(),
	}
}

func (s *Service) Today() time.Time {
	return dates.Today(s.now(), s.loc)
}

func isDoctor(u *staff.User) bool {
	return u.IsActive && (auth.IsDoctorRole(u.Role) || u.Role == "on-call")
}

// -- Referrals --

// Create refers a patient from the calling doctor to another doctor.
func (s *Service) Create(ctx context.Context, referringID uuid.UUID, r *Referral) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.ReceivingDoctorID == referringID {
		return errors.New("cannot refer a patient to yourself")
	}
	doctor, err := s.staff.Get(ctx, r.ReceivingDoctorID)
	if err != nil {
		if errors.Is(err, staff.ErrNotFound) {
			return ErrReceivingNotDoctor
		}
		return err
	}
	if !isDoctor(doctor) {
		return ErrReceivingNotDoctor
	}
	if _, err := s.patients.Get(ctx, r.PatientID); err != nil {
		return err
	}

	r.ReferringDoctorID = referringID
	r.Status = StatusPending
	r.AppointmentID = nil
	if err := s.referrals.Create(ctx, r); err != nil {
		return fmt.Errorf("create referral: %w", err)
	}
	s.logger.Info().Str("referral_id", r.ID.String()).Str("receiving_doctor_id", r.ReceivingDoctorID.String()).Msg("referral created")
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return s.referrals.GetByID(ctx, id)
}

func (s *Service) ListPending(ctx context.Context) ([]*Referral, error) {
	return s.referrals.ListByStatus(ctx, StatusPending)
}

func (s *Service) ListForParticipant(ctx context.Context, userID uuid.UUID) ([]*Referral, error) {
	return s.referrals.ListForDoctor(ctx, userID, false)
}

func (s *Service) ListPast(ctx context.Context, userID uuid.UUID) ([]*Referral, error) {
	return s.referrals.ListForDoctor(ctx, userID, true)
}

// Decline cancels a pending referral. Only its receiving doctor may do so.
func (s *Service) Decline(ctx context.Context, id, userID uuid.UUID) (*Referral, error) {
	r, err := s.referrals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.ReceivingDoctorID != userID {
		return nil, ErrNotReceivingDoctor
	}
	if r.Status != StatusPending {
		return nil, ErrNotPending
	}
	if err := s.referrals.UpdateStatus(ctx, r.ID, StatusCancelled, nil); err != nil {
		return nil, err
	}
	r.Status = StatusCancelled
	return r, nil
}

// PatientInfo is what the receiving doctor sees about a referred patient.
type PatientInfo struct {
	Referral     *Referral      `json:"referral"`
	Patient      *patient.View  `json:"patient"`
	Appointments []*Appointment `json:"appointments"`
}

func (s *Service) PatientInfo(ctx context.Context, id, userID uuid.UUID) (*PatientInfo, error) {
	r, err := s.referrals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.ReceivingDoctorID != userID {
		return nil, ErrNotReceivingDoctor
	}
	p, err := s.patients.Get(ctx, r.PatientID)
	if err != nil {
		return nil, err
	}
	appts, err := s.appointments.ListByPatient(ctx, r.PatientID)
	if err != nil {
		return nil, err
	}
	if appts == nil {
		appts = []*Appointment{}
	}
	return &PatientInfo{Referral: r, Patient: p, Appointments: appts}, nil
}

// -- Availability and appointments --

// Availability lists the doctor's free slots between two clinic-local dates.
func (s *Service) Availability(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Slot, error) {
	schedules, err := s.staff.ListSchedules(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, s.loc)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, s.loc).AddDate(0, 0, 1)
	booked, err := s.appointments.BookedTimes(ctx, doctorID, start.Add(-s.slotLen), end)
	if err != nil {
		return nil, err
	}
	return Slots(schedules, booked, from, to, s.now(), s.loc, s.slotLen), nil
}

// ScheduleAppointment books the referral's receiving doctor at a free slot.
func (s *Service) ScheduleAppointment(ctx context.Context, referralID uuid.UUID, at time.Time, schedulerID uuid.UUID, notes string) (*ScheduleResult, error) {
	var appt *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		r, err := s.referrals.GetForUpdate(ctx, referralID)
		if err != nil {
			return err
		}
		if r.Status != StatusPending {
			return ErrNotPending
		}
		day := at.In(s.loc)
		slots, err := s.Availability(ctx, r.ReceivingDoctorID, day, day)
		if err != nil {
			return err
		}
		if !SlotFree(slots, at) {
			return ErrSlotUnavailable
		}

		appt = &Appointment{
			PatientID:       r.PatientID,
			DoctorID:        r.ReceivingDoctorID,
			AppointmentDate: at,
			Status:          AppointmentScheduled,
			Notes:           notes,
		}
		if schedulerID != uuid.Nil {
			appt.ScheduledBy = &schedulerID
		}
		if err := s.appointments.Create(ctx, appt); err != nil {
			// A concurrent booking took the slot after the availability check.
			if db.IsUniqueViolation(err) {
				return ErrSlotUnavailable
			}
			return fmt.Errorf("create appointment: %w", err)
		}
		return s.referrals.UpdateStatus(ctx, r.ID, StatusScheduled, &appt.ID)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("referral_id", referralID.String()).Str("appointment_id", appt.ID.String()).
		Time("appointment_date", appt.AppointmentDate).Msg("appointment scheduled")
	return &ScheduleResult{
		Message:         "Appointment scheduled successfully",
		AppointmentID:   appt.ID,
		AppointmentDate: appt.AppointmentDate,
	}, nil
}

// Upcoming lists scheduled appointments from now on. Doctors see their own;
// secretaries and admins see everyone's.
func (s *Service) Upcoming(ctx context.Context, userID uuid.UUID, roles []string) ([]*Appointment, error) {
	var doctorID *uuid.UUID
	if !auth.HasRole(roles, auth.RoleSecretary) {
		doctorID = &userID
	}
	return s.appointments.ListUpcoming(ctx, doctorID, s.now())
}

func (s *Service) CompleteAppointment(ctx context.Context, id, userID uuid.UUID, roles []string) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.DoctorID != userID && !auth.HasRole(roles, auth.RoleAdmin) {
		return nil, ErrNotAppointmentDoctor
	}
	if a.Status != AppointmentScheduled {
		return nil, ErrNotScheduled
	}
	if err := s.appointments.UpdateStatus(ctx, a.ID, AppointmentCompleted); err != nil {
		return nil, err
	}
	a.Status = AppointmentCompleted
	return a, nil
}

// CancelAppointment cancels a scheduled appointment and reopens the referral
// that booked it.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var a *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.appointments.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if a.Status != AppointmentScheduled {
			return ErrNotScheduled
		}
		if err := s.appointments.UpdateStatus(ctx, a.ID, AppointmentCancelled); err != nil {
			return err
		}
		a.Status = AppointmentCancelled

		r, err := s.referrals.GetByAppointment(ctx, a.ID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return s.referrals.UpdateStatus(ctx, r.ID, StatusPending, nil)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}
