package staff

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("a user with this email already exists")
	ErrInvalidCredentials = errors.New("No active account found with the given credentials")
	ErrScheduleNotFound   = errors.New("schedule not found")
	ErrScheduleConflict   = errors.New("schedule already exists for this time")
	ErrNotOwner           = errors.New("doctors may only change their own schedule")
)

// User maps to the users table. Doctor-role users carry a specialization
// from the doctors table on reads.
type User struct {
	ID             uuid.UUID `json:"id"`
	Code           string    `json:"code"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Role           string    `json:"role"`
	IsActive       bool      `json:"is_active"`
	IsStaff        bool      `json:"is_staff"`
	Specialization *string   `json:"specialization,omitempty"`
	DateJoined     time.Time `json:"date_joined"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Doctor maps to the doctors table.
type Doctor struct {
	UserID         uuid.UUID `json:"user_id"`
	Specialization string    `json:"specialization"`
	Timezone       string    `json:"timezone"`
}

// Schedule is a recurring weekly working window for a doctor. Times are
// clinic-local "HH:MM".
type Schedule struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	DayOfWeek string    `json:"day_of_week"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
}

var weekdays = map[string]time.Weekday{
	"Sunday":    time.Sunday,
	"Monday":    time.Monday,
	"Tuesday":   time.Tuesday,
	"Wednesday": time.Wednesday,
	"Thursday":  time.Thursday,
	"Friday":    time.Friday,
	"Saturday":  time.Saturday,
}

// Weekday returns the schedule's day as a time.Weekday.
func (s *Schedule) Weekday() (time.Weekday, bool) {
	d, ok := weekdays[s.DayOfWeek]
	return d, ok
}

// Validate checks the day name and that start < end.
func (s *Schedule) Validate() error {
	if _, ok := s.Weekday(); !ok {
		return fmt.Errorf("day_of_week must be one of Monday..Sunday")
	}
	start, err := ParseClock(s.StartTime)
	if err != nil {
		return fmt.Errorf("start_time: %w", err)
	}
	end, err := ParseClock(s.EndTime)
	if err != nil {
		return fmt.Errorf("end_time: %w", err)
	}
	if start >= end {
		return fmt.Errorf("start_time must be before end_time")
	}
	return nil
}

// ParseClock parses "HH:MM" (a trailing ":SS" is accepted and ignored) into
// an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// FormatClock is the inverse of ParseClock.
func FormatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

// Profile is the caller's own account view.
type Profile struct {
	ID             uuid.UUID `json:"id"`
	Code           string    `json:"code"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Specialization *string   `json:"specialization,omitempty"`
}

func profileOf(u *User) *Profile {
	return &Profile{
		ID:             u.ID,
		Code:           u.Code,
		Email:          u.Email,
		Role:           u.Role,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Specialization: u.Specialization,
	}
}

// RegisterInput is the admin create-user request body.
type RegisterInput struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Role           string `json:"role"`
	Specialization string `json:"specialization"`
	IsStaff        bool   `json:"is_staff"`
}

// UpdateInput is the admin update-user request body.
type UpdateInput struct {
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Email          string  `json:"email"`
	Role           string  `json:"role"`
	Specialization *string `json:"specialization"`
	Password       string  `json:"password"`
}

// UpdateMeInput is the self-service profile update body.
type UpdateMeInput struct {
	FirstName      *string `json:"first_name"`
	LastName       *string `json:"last_name"`
	Specialization *string `json:"specialization"`
}
