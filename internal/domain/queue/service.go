package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/websocket"
	"github.com/clinic/clinic/pkg/dates"
)

type Service struct {
	entries     EntryRepository
	assessments AssessmentRepository
	tx          db.TxRunner
	events      websocket.EventPublisher
	loc         *time.Location
	now         func() time.Time
	logger      zerolog.Logger
}

func NewService(entries EntryRepository, assessments AssessmentRepository, tx db.TxRunner,
	events websocket.EventPublisher, loc *time.Location, logger zerolog.Logger) *Service {
	if tx == nil {
		tx = db.NoTx{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		entries:     entries,
		assessments: assessments,
		tx:          tx,
		events:      events,
		loc:         loc,
		now:         time.Now,
		logger:      logger.With().Str("component", "queue").Logger(),
	}
}

func (s *Service) today() time.Time {
	return dates.Today(s.now(), s.loc)
}

// Admit opens a new visit for the patient.
func (s *Service) Admit(ctx context.Context, patientID uuid.UUID, priority, complaint string) (*Entry, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	level, err := NormalizePriority(priority)
	if err != nil {
		return nil, err
	}
	complaint = strings.TrimSpace(complaint)
	if complaint == "" {
		complaint = DefaultComplaint
	}

	e := &Entry{
		PatientID:     patientID,
		PriorityLevel: level,
		Status:        StatusWaiting,
		Complaint:     complaint,
		QueueDate:     s.today(),
	}
	if err := s.entries.Create(ctx, e); err != nil {
		return nil, err
	}
	s.changed(ctx)
	return e, nil
}

// EarliestPriority returns the priority of the patient's first visit, used
// on re-admission. Patients without visits are Regular.
func (s *Service) EarliestPriority(ctx context.Context, patientID uuid.UUID) (string, error) {
	e, err := s.entries.Earliest(ctx, patientID)
	if errors.Is(err, ErrNotFound) {
		return PriorityRegular, nil
	}
	if err != nil {
		return "", err
	}
	return e.PriorityLevel, nil
}

func (s *Service) Latest(ctx context.Context, patientID uuid.UUID) (*Entry, error) {
	return s.entries.Latest(ctx, patientID)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.entries.GetByID(ctx, id)
}

func (s *Service) EntryFor(ctx context.Context, patientID uuid.UUID, queueNumber int64) (*Entry, error) {
	return s.entries.GetByPatientAndNumber(ctx, patientID, queueNumber)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Entry, error) {
	return s.entries.ListByPatient(ctx, patientID)
}

// LatestComplaint returns the complaint of the patient's most recent visit.
func (s *Service) LatestComplaint(ctx context.Context, patientID uuid.UUID) (string, error) {
	e, err := s.entries.Latest(ctx, patientID)
	if errors.Is(err, ErrNotFound) {
		return DefaultComplaint, nil
	}
	if err != nil {
		return "", err
	}
	if e.Complaint == "" {
		return DefaultComplaint, nil
	}
	return e.Complaint, nil
}

// -- Boards --

func (s *Service) enrich(entries []*BoardEntry) {
	now := s.now()
	for _, e := range entries {
		e.Age = dates.Age(e.DateOfBirth.Time, now)
	}
}

func (s *Service) Board(ctx context.Context, stage Stage) (*Board, error) {
	status, err := stage.Status()
	if err != nil {
		return nil, err
	}
	entries, err := s.entries.ListBoard(ctx, status, nil)
	if err != nil {
		return nil, err
	}
	s.enrich(entries)
	return BuildBoard(entries), nil
}

// Snapshot is the registration board limited to today's visits. It is the
// payload pushed to websocket clients.
func (s *Service) Snapshot(ctx context.Context) (*Board, error) {
	today := s.today()
	entries, err := s.entries.ListBoard(ctx, StatusWaiting, &today)
	if err != nil {
		return nil, err
	}
	s.enrich(entries)
	return BuildBoard(entries), nil
}

// ListByMonth returns every visit queued during the month containing t,
// ordered by queue number.
func (s *Service) ListByMonth(ctx context.Context, month time.Time) ([]*BoardEntry, error) {
	start := dates.MonthStart(month, s.loc)
	entries, err := s.entries.ListBetween(ctx, start, start.AddDate(0, 1, 0))
	if err != nil {
		return nil, err
	}
	s.enrich(entries)
	return entries, nil
}

// Broadcast publishes the current registration snapshot.
func (s *Service) Broadcast(ctx context.Context) {
	if s.events == nil {
		return
	}
	board, err := s.Snapshot(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("build queue snapshot")
		return
	}
	event, err := websocket.NewEvent(TopicRegistration, EventQueueUpdate, board)
	if err != nil {
		s.logger.Error().Err(err).Msg("encode queue snapshot")
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Msg("publish queue snapshot")
	}
}

// changed broadcasts unless ctx carries an open transaction; transactional
// callers broadcast after commit.
func (s *Service) changed(ctx context.Context) {
	if db.TxFromContext(ctx) != nil {
		return
	}
	s.Broadcast(ctx)
}

// -- Status changes --

func (s *Service) transition(ctx context.Context, e *Entry, to string) error {
	if !CanTransition(e.Status, to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, e.Status, to)
	}
	if err := s.entries.UpdateStatus(ctx, e.ID, to); err != nil {
		return err
	}
	e.Status = to
	s.logger.Info().Str("entry_id", e.ID.String()).Int64("queue_number", e.QueueNumber).Str("status", to).Msg("queue status changed")
	return nil
}

// Accept moves the patient's latest visit from Waiting to the assessment
// queue.
func (s *Service) Accept(ctx context.Context, patientID uuid.UUID) (*Entry, error) {
	e, err := s.entries.Latest(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, e, StatusQueuedAssessment); err != nil {
		return nil, err
	}
	s.changed(ctx)
	return e, nil
}

func (s *Service) StartAssessment(ctx context.Context, entryID uuid.UUID) (*Entry, error) {
	e, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, e, StatusBeingAssessed); err != nil {
		return nil, err
	}
	s.changed(ctx)
	return e, nil
}

// SubmitAssessment records the assessment for a visit and moves it to the
// treatment queue.
func (s *Service) SubmitAssessment(ctx context.Context, patientID uuid.UUID, queueNumber int64, a *Assessment) error {
	if err := a.Validate(); err != nil {
		return err
	}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		e, err := s.entries.GetByPatientAndNumber(ctx, patientID, queueNumber)
		if err != nil {
			return err
		}
		if err := s.transition(ctx, e, StatusQueuedTreatment); err != nil {
			return err
		}
		a.PatientID = patientID
		a.QueueEntryID = &e.ID
		if strings.TrimSpace(a.Assessment) == "" {
			a.Assessment = DefaultAssessment
		}
		return s.assessments.Create(ctx, a)
	})
	if err != nil {
		return err
	}
	s.changed(ctx)
	return nil
}

func (s *Service) GetAssessment(ctx context.Context, patientID uuid.UUID, queueNumber int64) (*Assessment, error) {
	e, err := s.entries.GetByPatientAndNumber(ctx, patientID, queueNumber)
	if err != nil {
		return nil, err
	}
	return s.assessments.GetByEntry(ctx, e.ID)
}

func (s *Service) LatestAssessment(ctx context.Context, patientID uuid.UUID) (*Assessment, error) {
	return s.assessments.Latest(ctx, patientID)
}

// Complete closes a visit after treatment.
func (s *Service) Complete(ctx context.Context, entryID uuid.UUID) (*Entry, error) {
	e, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, e, StatusCompleted); err != nil {
		return nil, err
	}
	s.changed(ctx)
	return e, nil
}
