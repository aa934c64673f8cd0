package referral

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending   = "pending"
	StatusScheduled = "scheduled"
	StatusCancelled = "cancelled"

	AppointmentScheduled = "Scheduled"
	AppointmentCompleted = "Completed"
	AppointmentCancelled = "Cancelled"
)

var (
	ErrNotFound             = errors.New("referral not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrNotReceivingDoctor   = errors.New("only the receiving doctor can perform this action")
	ErrNotPending           = errors.New("referral is not pending")
	ErrNotScheduled         = errors.New("appointment is not scheduled")
	ErrSlotUnavailable      = errors.New("the selected time is not available")
	ErrReceivingNotDoctor   = errors.New("receiving doctor must be an active doctor")
	ErrInvalidDate          = errors.New("Invalid date format. Use YYYY-MM-DD")
	ErrInvalidRange         = errors.New("end_date must not be before start_date")
	ErrNotAppointmentDoctor = errors.New("only the appointment's doctor can complete it")
)

type Referral struct {
	ID                  uuid.UUID  `json:"id"`
	ReferringDoctorID   uuid.UUID  `json:"referring_doctor_id"`
	ReferringDoctorName string     `json:"referring_doctor_name,omitempty"`
	ReceivingDoctorID   uuid.UUID  `json:"receiving_doctor_id"`
	ReceivingDoctorName string     `json:"receiving_doctor_name,omitempty"`
	PatientID           uuid.UUID  `json:"patient_id"`
	PatientName         string     `json:"patient_name,omitempty"`
	Reason              string     `json:"reason"`
	Notes               string     `json:"notes"`
	Status              string     `json:"status"`
	AppointmentID       *uuid.UUID `json:"appointment_id"`
	AppointmentDate     *time.Time `json:"appointment_date,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Validate trims the free-text fields and checks the required ones.
func (r *Referral) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	r.Notes = strings.TrimSpace(r.Notes)
	switch {
	case r.PatientID == uuid.Nil:
		return errors.New("patient is required")
	case r.ReceivingDoctorID == uuid.Nil:
		return errors.New("receiving_doctor is required")
	case r.Reason == "":
		return errors.New("reason is required")
	}
	return nil
}

// IsParticipant reports whether userID referred or received the patient.
func (r *Referral) IsParticipant(userID uuid.UUID) bool {
	return r.ReferringDoctorID == userID || r.ReceivingDoctorID == userID
}

type Appointment struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	PatientName     string     `json:"patient_name,omitempty"`
	DoctorID        uuid.UUID  `json:"doctor_id"`
	DoctorName      string     `json:"doctor_name,omitempty"`
	ScheduledBy     *uuid.UUID `json:"scheduled_by"`
	AppointmentDate time.Time  `json:"appointment_date"`
	Status          string     `json:"status"`
	Notes           string     `json:"notes"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Slot is a bookable appointment window.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ScheduleResult is returned after booking a referral.
type ScheduleResult struct {
	Message         string    `json:"message"`
	AppointmentID   uuid.UUID `json:"appointment_id"`
	AppointmentDate time.Time `json:"appointment_date"`
}
