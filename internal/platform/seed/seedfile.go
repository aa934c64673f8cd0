// Package seed loads reference data from YAML seed files and generates
// reproducible synthetic clinic activity for demos and load tests.
package seed

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/clinic/clinic/internal/platform/auth"
)

// SeedFile is the top-level document of a seed YAML file.
type SeedFile struct {
	Users     []UserSpec     `yaml:"users"`
	Medicines []MedicineSpec `yaml:"medicines"`
}

type UserSpec struct {
	Email          string         `yaml:"email"`
	FirstName      string         `yaml:"first_name"`
	LastName       string         `yaml:"last_name"`
	Role           string         `yaml:"role"`
	Password       string         `yaml:"password"`
	Specialization string         `yaml:"specialization"`
	Schedules      []ScheduleSpec `yaml:"schedules"`
}

// ScheduleSpec is a weekly availability window, times as HH:MM.
type ScheduleSpec struct {
	Day   string `yaml:"day"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type MedicineSpec struct {
	Name           string `yaml:"name"`
	Category       string `yaml:"category"`
	DosageForm     string `yaml:"dosage_form"`
	Strength       string `yaml:"strength"`
	Manufacturer   string `yaml:"manufacturer"`
	Indication     string `yaml:"indication"`
	Classification string `yaml:"classification"`
	Stocks         int    `yaml:"stocks"`
	ExpirationDate string `yaml:"expiration_date"`
}

func LoadFile(path string) (*SeedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates a seed document. Unknown keys are rejected.
func Parse(r io.Reader) (*SeedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sf SeedFile
	if err := dec.Decode(&sf); err != nil {
		if errors.Is(err, io.EOF) {
			return &sf, nil
		}
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	if err := sf.Validate(); err != nil {
		return nil, err
	}
	return &sf, nil
}

func (sf *SeedFile) Validate() error {
	emails := make(map[string]bool)
	for i, u := range sf.Users {
		email := strings.ToLower(strings.TrimSpace(u.Email))
		switch {
		case email == "":
			return fmt.Errorf("users[%d]: email is required", i)
		case emails[email]:
			return fmt.Errorf("users[%d]: duplicate email %s", i, email)
		case !auth.IsValidRole(u.Role):
			return fmt.Errorf("users[%d]: invalid role %q", i, u.Role)
		case u.Password == "":
			return fmt.Errorf("users[%d]: password is required", i)
		case len(u.Schedules) > 0 && !auth.IsDoctorRole(u.Role):
			return fmt.Errorf("users[%d]: only doctors can have schedules", i)
		}
		emails[email] = true
	}
	names := make(map[string]bool)
	for i, m := range sf.Medicines {
		name := strings.ToLower(strings.TrimSpace(m.Name))
		switch {
		case name == "":
			return fmt.Errorf("medicines[%d]: name is required", i)
		case names[name]:
			return fmt.Errorf("medicines[%d]: duplicate name %s", i, m.Name)
		case m.Stocks < 0:
			return fmt.Errorf("medicines[%d]: stocks must not be negative", i)
		}
		names[name] = true
	}
	return nil
}
