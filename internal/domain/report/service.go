package report

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clinic/clinic/internal/domain/lab"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/queue"
	"github.com/clinic/clinic/internal/domain/treatment"
)

type Patients interface {
	Get(ctx context.Context, id uuid.UUID) (*patient.View, error)
}

type Queue interface {
	ListByMonth(ctx context.Context, month time.Time) ([]*queue.BoardEntry, error)
	LatestAssessment(ctx context.Context, patientID uuid.UUID) (*queue.Assessment, error)
}

type Treatments interface {
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*treatment.Treatment, error)
	ListDiagnoses(ctx context.Context, patientID uuid.UUID) ([]*treatment.Diagnosis, error)
}

type Labs interface {
	ListResults(ctx context.Context, patientID uuid.UUID) ([]*lab.Result, error)
}

// Sources are the domain services the patient and queue reports read from.
type Sources struct {
	Patients   Patients
	Queue      Queue
	Treatments Treatments
	Labs       Labs
}

type Service struct {
	repo       Repository
	src        Sources
	loc        *time.Location
	clinicName string
	now        func() time.Time
	logger     zerolog.Logger
}

func NewService(repo Repository, src Sources, loc *time.Location, clinicName string, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:       repo,
		src:        src,
		loc:        loc,
		clinicName: clinicName,
		now:        time.Now,
		logger:     logger.With().Str("component", "report").Logger(),
	}
}

// Range resolves the start_date/end_date parameters against the clinic
// clock.
func (s *Service) Range(start, end string) (Range, error) {
	return ParseRange(start, end, s.now(), s.loc)
}

func (s *Service) MonthRange(month string) (Range, error) {
	return MonthRange(month, s.now(), s.loc)
}

func (s *Service) visits(ctx context.Context, r Range) ([]Visit, error) {
	return s.repo.ListVisits(ctx, r.Start, r.EndExclusive())
}

func (s *Service) MonthlyVisits(ctx context.Context, r Range) ([]MonthCount, error) {
	visits, err := s.visits(ctx, r)
	if err != nil {
		return nil, err
	}
	times := make([]time.Time, len(visits))
	for i, v := range visits {
		times[i] = visitTime(v)
	}
	return CountByMonth(times, r, s.loc), nil
}

func (s *Service) MonthlyLabResults(ctx context.Context, r Range) ([]MonthCount, error) {
	items, err := s.repo.ListLabRequests(ctx, r.Start, r.EndExclusive())
	if err != nil {
		return nil, err
	}
	times := make([]time.Time, len(items))
	for i, it := range items {
		times[i] = it.CreatedAt
	}
	return CountByMonth(times, r, s.loc), nil
}

func (s *Service) CommonDiseases(ctx context.Context, r Range, limit int) ([]DiseaseCount, error) {
	rows, err := s.repo.ListDiagnoses(ctx, r.Start, r.EndExclusive())
	if err != nil {
		return nil, err
	}
	return RankDiseases(rows, limit), nil
}

func (s *Service) FrequentMedicines(ctx context.Context, r Range, limit int) ([]MedicineCount, error) {
	return s.repo.FrequentMedicines(ctx, r.Start, r.EndExclusive(), limit)
}

// TotalPatients lists every registered patient, or only those registered
// within r when the range was given explicitly.
func (s *Service) TotalPatients(ctx context.Context, r Range) ([]PatientRow, error) {
	if !r.Explicit {
		return s.repo.ListPatients(ctx, time.Time{}, time.Time{})
	}
	return s.repo.ListPatients(ctx, r.Start, r.EndExclusive())
}

func (s *Service) VisitDetails(ctx context.Context, r Range) (map[string][]Visit, error) {
	visits, err := s.visits(ctx, r)
	if err != nil {
		return nil, err
	}
	return GroupVisits(visits, s.loc), nil
}

func (s *Service) VisitSummary(ctx context.Context, r Range) (VisitSummary, error) {
	visits, err := s.visits(ctx, r)
	if err != nil {
		return VisitSummary{}, err
	}
	return Summarize(visits, r, s.loc), nil
}

func (s *Service) LabDetails(ctx context.Context, r Range) (map[string][]LabDetail, error) {
	items, err := s.repo.ListLabRequests(ctx, r.Start, r.EndExclusive())
	if err != nil {
		return nil, err
	}
	return GroupLabDetails(items, s.loc), nil
}

func (s *Service) DiseaseDetails(ctx context.Context, r Range) (map[string][]DiseaseCount, error) {
	rows, err := s.repo.ListDiagnoses(ctx, r.Start, r.EndExclusive())
	if err != nil {
		return nil, err
	}
	return DiseasesByMonth(rows, s.loc), nil
}

type RecentTreatment struct {
	ID             uuid.UUID                 `json:"id"`
	CreatedAt      time.Time                 `json:"created_at"`
	TreatmentNotes string                    `json:"treatment_notes"`
	DoctorInfo     treatment.DoctorInfo      `json:"doctor_info"`
	Prescriptions  []*treatment.Prescription `json:"prescriptions"`
	Diagnoses      []*treatment.Diagnosis    `json:"diagnoses"`
}

type TreatmentNote struct {
	TreatmentID uuid.UUID `json:"treatment_id"`
	CreatedAt   time.Time `json:"created_at"`
	Notes       string    `json:"treatment_notes"`
	Doctor      string    `json:"doctor"`
}

type PatientReport struct {
	Patient               *patient.View          `json:"patient"`
	PreliminaryAssessment *queue.Assessment      `json:"preliminary_assessment"`
	RecentTreatment       *RecentTreatment       `json:"recent_treatment"`
	AllDiagnoses          []*treatment.Diagnosis `json:"all_diagnoses"`
	Laboratories          []*lab.Result          `json:"laboratories"`
	AllTreatmentNotes     []TreatmentNote        `json:"all_treatment_notes"`
}

// PatientReport gathers the patient's record, latest assessment, treatments,
// diagnoses and lab results concurrently.
func (s *Service) PatientReport(ctx context.Context, patientID uuid.UUID) (*PatientReport, error) {
	rep := &PatientReport{
		AllDiagnoses:      []*treatment.Diagnosis{},
		Laboratories:      []*lab.Result{},
		AllTreatmentNotes: []TreatmentNote{},
	}
	var treatments []*treatment.Treatment

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.src.Patients.Get(gctx, patientID)
		rep.Patient = p
		return err
	})
	g.Go(func() error {
		a, err := s.src.Queue.LatestAssessment(gctx, patientID)
		if errors.Is(err, queue.ErrAssessmentNotFound) {
			return nil
		}
		rep.PreliminaryAssessment = a
		return err
	})
	g.Go(func() error {
		var err error
		treatments, err = s.src.Treatments.ListByPatient(gctx, patientID)
		return err
	})
	g.Go(func() error {
		ds, err := s.src.Treatments.ListDiagnoses(gctx, patientID)
		if ds != nil {
			rep.AllDiagnoses = ds
		}
		return err
	})
	g.Go(func() error {
		rs, err := s.src.Labs.ListResults(gctx, patientID)
		if rs != nil {
			rep.Laboratories = rs
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, t := range treatments {
		doctor := treatment.DoctorInfo{}
		if t.DoctorInfo != nil {
			doctor = *t.DoctorInfo
		}
		if i == 0 {
			rep.RecentTreatment = &RecentTreatment{
				ID:             t.ID,
				CreatedAt:      t.CreatedAt,
				TreatmentNotes: t.TreatmentNotes,
				DoctorInfo:     doctor,
				Prescriptions:  orEmpty(t.Prescriptions),
				Diagnoses:      orEmpty(t.Diagnoses),
			}
		}
		if t.TreatmentNotes != "" {
			rep.AllTreatmentNotes = append(rep.AllTreatmentNotes, TreatmentNote{
				TreatmentID: t.ID,
				CreatedAt:   t.CreatedAt,
				Notes:       t.TreatmentNotes,
				Doctor:      doctor.Name,
			})
		}
	}
	return rep, nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
