package treatment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/medicine"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/queue"
	"github.com/clinic/clinic/internal/platform/db"
)

// Medicines resolves and dispenses catalogue entries.
type Medicines interface {
	Resolve(ctx context.Context, ref string) (*medicine.Medicine, error)
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error)
}

// Queue is the part of the visit queue a treatment closes.
type Queue interface {
	EntryFor(ctx context.Context, patientID uuid.UUID, queueNumber int64) (*queue.Entry, error)
	Latest(ctx context.Context, patientID uuid.UUID) (*queue.Entry, error)
	Complete(ctx context.Context, entryID uuid.UUID) (*queue.Entry, error)
	Broadcast(ctx context.Context)
}

type Patients interface {
	Get(ctx context.Context, id uuid.UUID) (*patient.View, error)
}

type Service struct {
	repo      Repository
	medicines Medicines
	queue     Queue
	patients  Patients
	tx        db.TxRunner
	now       func() time.Time
	logger    zerolog.Logger
}

func NewService(repo Repository, medicines Medicines, q Queue, patients Patients, tx db.TxRunner, logger zerolog.Logger) *Service {
	if tx == nil {
		tx = db.NoTx{}
	}
	return &Service{
		repo:      repo,
		medicines: medicines,
		queue:     q,
		patients:  patients,
		tx:        tx,
		now:       time.Now,
		logger:    logger.With().Str("component", "treatment").Logger(),
	}
}

// Create records a treatment for the visit identified by patient and queue
// number, then completes that visit.
func (s *Service) Create(ctx context.Context, patientID uuid.UUID, queueNumber int64, doctorID uuid.UUID, in CreateInput) (*Treatment, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var t *Treatment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		entry, err := s.queue.EntryFor(ctx, patientID, queueNumber)
		if err != nil {
			return err
		}

		meds := make([]*medicine.Medicine, len(in.Prescriptions))
		for i, p := range in.Prescriptions {
			ref := p.MedicineRef()
			m, err := s.medicines.Resolve(ctx, ref)
			switch {
			case errors.Is(err, medicine.ErrExpired):
				return &MedicineError{Ref: m.Name, Expired: true}
			case errors.Is(err, medicine.ErrNotFound):
				return &MedicineError{Ref: ref}
			case err != nil:
				return err
			}
			meds[i] = m
		}

		t = &Treatment{
			PatientID:      patientID,
			QueueEntryID:   &entry.ID,
			TreatmentNotes: strings.TrimSpace(in.TreatmentNotes),
		}
		if doctorID != uuid.Nil {
			t.DoctorID = &doctorID
		}
		if err := s.repo.Create(ctx, t); err != nil {
			return fmt.Errorf("create treatment: %w", err)
		}

		t.Diagnoses = make([]*Diagnosis, 0, len(in.Diagnoses))
		for _, d := range in.Diagnoses {
			diag := &Diagnosis{
				PatientID:   patientID,
				TreatmentID: &t.ID,
				Code:        strings.TrimSpace(d.Code),
				Description: strings.TrimSpace(d.Description),
				Date:        s.now().UTC(),
			}
			if d.Date != nil && !d.Date.IsZero() {
				diag.Date = d.Date.Time
			}
			if err := s.repo.CreateDiagnosis(ctx, diag); err != nil {
				return fmt.Errorf("create diagnosis: %w", err)
			}
			t.Diagnoses = append(t.Diagnoses, diag)
		}

		t.Prescriptions = make([]*Prescription, 0, len(in.Prescriptions))
		for i, p := range in.Prescriptions {
			qty := int(p.Quantity)
			if qty == 0 {
				qty = 1
			}
			rx := &Prescription{
				PatientID:   patientID,
				TreatmentID: &t.ID,
				MedicineID:  meds[i].ID,
				Medication:  &Medication{ID: meds[i].ID, Name: meds[i].Name, Strength: meds[i].Strength, Stocks: meds[i].Stocks},
				Dosage:      strings.TrimSpace(p.Dosage),
				Frequency:   strings.TrimSpace(p.Frequency),
				Quantity:    qty,
				StartDate:   p.StartDate,
				EndDate:     p.EndDate,
				Note:        strings.TrimSpace(p.Note),
				Status:      PrescriptionPending,
			}
			if err := s.repo.CreatePrescription(ctx, rx); err != nil {
				return fmt.Errorf("create prescription: %w", err)
			}
			t.Prescriptions = append(t.Prescriptions, rx)
		}

		_, err = s.queue.Complete(ctx, entry.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("treatment_id", t.ID.String()).
		Str("patient_id", patientID.String()).
		Int64("queue_number", queueNumber).
		Int("prescriptions", len(t.Prescriptions)).
		Msg("treatment recorded")
	s.queue.Broadcast(ctx)
	return t, nil
}

func (s *Service) PatientHistory(ctx context.Context, patientID uuid.UUID) (*History, error) {
	items, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return NewHistory(items), nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Treatment, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

// Detail is the treatment page of one patient.
type Detail struct {
	Patient            *patient.View `json:"patient"`
	QueueData          *queue.Entry  `json:"queue_data"`
	RecentTreatment    *Treatment    `json:"recent_treatment"`
	PreviousTreatments []*Treatment  `json:"previous_treatments"`
}

func (s *Service) Detail(ctx context.Context, patientID uuid.UUID) (*Detail, error) {
	p, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	d := &Detail{Patient: p, PreviousTreatments: []*Treatment{}}

	entry, err := s.queue.Latest(ctx, patientID)
	switch {
	case err == nil:
		d.QueueData = entry
	case !errors.Is(err, queue.ErrNotFound):
		return nil, err
	}

	h, err := s.PatientHistory(ctx, patientID)
	if err != nil {
		return nil, err
	}
	d.RecentTreatment = h.LatestTreatment
	d.PreviousTreatments = h.OldTreatments
	return d, nil
}

func (s *Service) ListLatestPerPatient(ctx context.Context, limit, offset int) ([]*Summary, int, error) {
	return s.repo.ListLatestPerPatient(ctx, limit, offset)
}

func (s *Service) ListDiagnoses(ctx context.Context, patientID uuid.UUID) ([]*Diagnosis, error) {
	return s.repo.ListDiagnoses(ctx, patientID)
}

func (s *Service) PendingPrescriptions(ctx context.Context) ([]*Prescription, error) {
	return s.repo.ListPendingPrescriptions(ctx)
}

// ConfirmDispense settles pending prescriptions. Confirmed lines take their
// quantity out of stock; the rest are declined. Either all lines settle or
// none do.
func (s *Service) ConfirmDispense(ctx context.Context, items []DispenseItem) (*DispenseResult, error) {
	if len(items) == 0 {
		return nil, invalidf("items is required")
	}
	res := &DispenseResult{}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		for _, item := range items {
			rx, err := s.repo.GetPrescriptionForUpdate(ctx, item.ID)
			if err != nil {
				return err
			}
			if rx.Status != PrescriptionPending {
				return fmt.Errorf("%w: %s", ErrAlreadyProcessed, rx.ID)
			}
			if !item.Confirmed {
				if err := s.repo.SetPrescriptionStatus(ctx, rx.ID, PrescriptionDeclined, nil); err != nil {
					return err
				}
				res.Declined++
				continue
			}
			if _, err := s.medicines.AdjustStock(ctx, rx.MedicineID, -rx.Quantity); err != nil {
				if errors.Is(err, medicine.ErrInsufficientStock) {
					name := rx.MedicineID.String()
					if rx.Medication != nil {
						name = rx.Medication.Name
					}
					return fmt.Errorf("%w for %s", medicine.ErrInsufficientStock, name)
				}
				return err
			}
			at := s.now().UTC()
			if err := s.repo.SetPrescriptionStatus(ctx, rx.ID, PrescriptionDispensed, &at); err != nil {
				return err
			}
			res.Dispensed++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int("dispensed", res.Dispensed).Int("declined", res.Declined).Msg("prescriptions settled")
	return res, nil
}
