package queue

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/pkg/dates"
)

const (
	StatusWaiting          = "Waiting"
	StatusQueuedAssessment = "Queued for Assessment"
	StatusBeingAssessed    = "Being Assessed"
	StatusQueuedTreatment  = "Queued for Treatment"
	StatusCompleted        = "Completed"

	PriorityRegular  = "Regular"
	PriorityPriority = "Priority"

	DefaultComplaint  = "General Illness"
	DefaultAssessment = "No assessment provided yet"

	TopicRegistration = "registration_queue"
	EventQueueUpdate  = "queue_update"
)

var (
	ErrNotFound           = errors.New("queue entry not found")
	ErrAssessmentNotFound = errors.New("assessment not found")
	ErrInvalidTransition  = errors.New("invalid queue status transition")
	ErrInvalidPriority    = errors.New("priority_level must be Regular or Priority")
	ErrUnknownStage       = errors.New("unknown queue stage")
)

var transitions = map[string][]string{
	StatusWaiting:          {StatusQueuedAssessment},
	StatusQueuedAssessment: {StatusBeingAssessed, StatusQueuedTreatment},
	StatusBeingAssessed:    {StatusQueuedTreatment},
	StatusQueuedTreatment:  {StatusCompleted},
}

// CanTransition reports whether an entry may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NormalizePriority maps user input onto the stored priority names. Empty
// input means Regular.
func NormalizePriority(p string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "", "regular":
		return PriorityRegular, nil
	case "priority":
		return PriorityPriority, nil
	}
	return "", ErrInvalidPriority
}

// Entry is one visit in the clinic queue.
type Entry struct {
	ID            uuid.UUID `json:"id"`
	PatientID     uuid.UUID `json:"patient_id"`
	QueueNumber   int64     `json:"queue_number"`
	PriorityLevel string    `json:"priority_level"`
	Status        string    `json:"status"`
	Complaint     string    `json:"complaint"`
	QueueDate     time.Time `json:"queue_date"`
	Position      int       `json:"position"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BoardEntry is an entry joined with the patient details shown on queue
// screens.
type BoardEntry struct {
	Entry
	PatientCode  string     `json:"patient_code"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	PhoneNumber  string     `json:"phone_number"`
	DateOfBirth  dates.Date `json:"date_of_birth"`
	Age          int        `json:"age"`
	IsNewPatient bool       `json:"is_new_patient"`
}

func (b *BoardEntry) PatientName() string {
	return strings.TrimSpace(b.FirstName + " " + b.LastName)
}

// Board is the head of a queue stage: the current and next two patients of
// each priority lane. Missing slots are null.
type Board struct {
	PriorityCurrent *BoardEntry `json:"priority_current"`
	PriorityNext1   *BoardEntry `json:"priority_next1"`
	PriorityNext2   *BoardEntry `json:"priority_next2"`
	RegularCurrent  *BoardEntry `json:"regular_current"`
	RegularNext1    *BoardEntry `json:"regular_next1"`
	RegularNext2    *BoardEntry `json:"regular_next2"`
}

// Stage names a queue screen.
type Stage string

const (
	StageRegistration Stage = "registration"
	StageAssessment   Stage = "assessment"
	StageTreatment    Stage = "treatment"
)

// Status returns the entry status shown on the stage's screen.
func (s Stage) Status() (string, error) {
	switch s {
	case StageRegistration:
		return StatusWaiting, nil
	case StageAssessment:
		return StatusQueuedAssessment, nil
	case StageTreatment:
		return StatusQueuedTreatment, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownStage, s)
}

// SortEntries orders entries by position, then queue number, then creation
// time.
func SortEntries(entries []*BoardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if a.QueueNumber != b.QueueNumber {
			return a.QueueNumber < b.QueueNumber
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// BuildBoard splits entries into the two priority lanes and takes the first
// three of each.
func BuildBoard(entries []*BoardEntry) *Board {
	sorted := make([]*BoardEntry, len(entries))
	copy(sorted, entries)
	SortEntries(sorted)

	var priority, regular []*BoardEntry
	for _, e := range sorted {
		if e.PriorityLevel == PriorityPriority {
			priority = append(priority, e)
		} else {
			regular = append(regular, e)
		}
	}

	at := func(list []*BoardEntry, i int) *BoardEntry {
		if i < len(list) {
			return list[i]
		}
		return nil
	}
	return &Board{
		PriorityCurrent: at(priority, 0),
		PriorityNext1:   at(priority, 1),
		PriorityNext2:   at(priority, 2),
		RegularCurrent:  at(regular, 0),
		RegularNext1:    at(regular, 1),
		RegularNext2:    at(regular, 2),
	}
}

// Assessment is the preliminary vitals and intake captured before
// treatment.
type Assessment struct {
	ID                 uuid.UUID  `json:"id"`
	PatientID          uuid.UUID  `json:"patient_id"`
	QueueEntryID       *uuid.UUID `json:"queue_entry_id,omitempty"`
	BloodPressure      string     `json:"blood_pressure"`
	Temperature        string     `json:"temperature"`
	HeartRate          string     `json:"heart_rate"`
	RespiratoryRate    string     `json:"respiratory_rate"`
	PulseRate          string     `json:"pulse_rate"`
	Allergies          string     `json:"allergies"`
	MedicalHistory     string     `json:"medical_history"`
	Symptoms           string     `json:"symptoms"`
	CurrentMedications string     `json:"current_medications"`
	CurrentSymptoms    string     `json:"current_symptoms"`
	PainScale          *int       `json:"pain_scale"`
	PainLocation       string     `json:"pain_location"`
	SmokingStatus      string     `json:"smoking_status"`
	AlcoholUse         string     `json:"alcohol_use"`
	Assessment         string     `json:"assessment"`
	AssessmentDate     time.Time  `json:"assessment_date"`
}

func (a *Assessment) Validate() error {
	if a.PainScale != nil && (*a.PainScale < 0 || *a.PainScale > 10) {
		return fmt.Errorf("pain_scale must be between 0 and 10")
	}
	return nil
}
