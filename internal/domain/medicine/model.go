package medicine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/pkg/dates"
)

var (
	ErrNotFound          = errors.New("medicine not found")
	ErrExpired           = errors.New("medicine is expired")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateName     = errors.New("a medicine with this name already exists")
)

type Medicine struct {
	ID             uuid.UUID   `json:"id"`
	Name           string      `json:"name"`
	Category       string      `json:"category"`
	DosageForm     string      `json:"dosage_form"`
	Strength       string      `json:"strength"`
	Manufacturer   string      `json:"manufacturer"`
	Indication     string      `json:"indication"`
	Classification string      `json:"classification"`
	Stocks         int         `json:"stocks"`
	ExpirationDate *dates.Date `json:"expiration_date"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func (m *Medicine) Validate() error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.Stocks < 0 {
		return fmt.Errorf("stocks cannot be negative")
	}
	return nil
}

// ExpiredOn reports whether the expiration date falls before day.
func (m *Medicine) ExpiredOn(day time.Time) bool {
	if m.ExpirationDate == nil || m.ExpirationDate.IsZero() {
		return false
	}
	exp := m.ExpirationDate.Time
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return time.Date(exp.Year(), exp.Month(), exp.Day(), 0, 0, 0, 0, time.UTC).Before(d)
}

// SearchHit is the compact form used by prescription pickers.
type SearchHit struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Stocks   int       `json:"stocks"`
	Strength string    `json:"strength"`
}

// ImportResult summarises a catalogue import.
type ImportResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}
