package patient

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/queue"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/dates"
)

const searchLimit = 50

// Queue is the part of the visit queue that registration drives.
type Queue interface {
	Admit(ctx context.Context, patientID uuid.UUID, priority, complaint string) (*queue.Entry, error)
	EarliestPriority(ctx context.Context, patientID uuid.UUID) (string, error)
	Latest(ctx context.Context, patientID uuid.UUID) (*queue.Entry, error)
	LatestComplaint(ctx context.Context, patientID uuid.UUID) (string, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*queue.Entry, error)
	Broadcast(ctx context.Context)
}

type Service struct {
	patients Repository
	queue    Queue
	tx       db.TxRunner
	now      func() time.Time
}

func NewService(patients Repository, q Queue, tx db.TxRunner) *Service {
	if tx == nil {
		tx = db.NoTx{}
	}
	return &Service{patients: patients, queue: q, tx: tx, now: time.Now}
}

// Register creates a patient and opens their first visit, or re-admits an
// existing patient when a patient code is given.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	if code := strings.TrimSpace(in.PatientCode); code != "" {
		return s.readmit(ctx, code, in.Complaint)
	}

	p := in.Patient
	p.normalize()
	if err := p.Validate(s.now()); err != nil {
		return nil, err
	}
	if _, err := queue.NormalizePriority(in.PriorityLevel); err != nil {
		return nil, err
	}

	var entry *queue.Entry
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.patients.Create(ctx, &p); err != nil {
			return err
		}
		var err error
		entry, err = s.queue.Admit(ctx, p.ID, in.PriorityLevel, in.Complaint)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.queue.Broadcast(ctx)

	return &RegisterResult{
		Message:    "Patient registered successfully.",
		Patient:    &p,
		QueueEntry: entry,
	}, nil
}

func (s *Service) readmit(ctx context.Context, code, complaint string) (*RegisterResult, error) {
	p, err := s.patients.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		priority, err := s.queue.EarliestPriority(ctx, p.ID)
		if err != nil {
			return err
		}
		_, err = s.queue.Admit(ctx, p.ID, priority, complaint)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.queue.Broadcast(ctx)

	entries, err := s.queue.ListByPatient(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &RegisterResult{
		Message:      "Patient re-admitted successfully.",
		Patient:      p,
		QueueEntries: entries,
	}, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &View{Patient: p, Age: dates.Age(p.DateOfBirth.Time, s.now())}, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (*Patient, error) {
	return s.patients.GetByCode(ctx, code)
}

func (s *Service) Update(ctx context.Context, p *Patient) error {
	p.normalize()
	if err := p.Validate(s.now()); err != nil {
		return err
	}
	return s.patients.Update(ctx, p)
}

// List returns a page of patients, each with their latest visit.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*View, int, error) {
	patients, total, err := s.patients.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	views := make([]*View, 0, len(patients))
	for _, p := range patients {
		v := &View{Patient: p, Age: dates.Age(p.DateOfBirth.Time, now)}
		latest, err := s.queue.Latest(ctx, p.ID)
		if err != nil && !errors.Is(err, queue.ErrNotFound) {
			return nil, 0, err
		}
		v.LatestQueue = latest
		views = append(views, v)
	}
	return views, total, nil
}

// Search returns matching patients with age and latest complaint. A blank
// query lists every patient.
func (s *Service) Search(ctx context.Context, q string) ([]*View, error) {
	patients, err := s.patients.Search(ctx, strings.TrimSpace(q), searchLimit)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]*View, 0, len(patients))
	for _, p := range patients {
		complaint, err := s.queue.LatestComplaint(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, &View{Patient: p, Age: dates.Age(p.DateOfBirth.Time, now), LatestComplaint: complaint})
	}
	return views, nil
}

func (s *Service) LatestComplaint(ctx context.Context, id uuid.UUID) (string, error) {
	if _, err := s.patients.GetByID(ctx, id); err != nil {
		return "", err
	}
	return s.queue.LatestComplaint(ctx, id)
}
