package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/medicine"
	"github.com/clinic/clinic/internal/domain/staff"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/dates"
)

// Staff registers seeded accounts and their schedules.
type Staff interface {
	Register(ctx context.Context, in staff.RegisterInput) (*staff.User, error)
	CreateSchedule(ctx context.Context, sch *staff.Schedule) error
	ListDoctors(ctx context.Context, caller uuid.UUID, limit, offset int) ([]*staff.User, int, error)
}

// Medicines is satisfied by medicine.Repository.
type Medicines interface {
	UpsertByName(ctx context.Context, m *medicine.Medicine) (bool, error)
	List(ctx context.Context, q string, limit, offset int) ([]*medicine.Medicine, int, error)
}

// Store persists synthetic records. It reports false when a record was
// skipped.
type Store interface {
	WriteRecord(ctx context.Context, rec *Record) (bool, error)
}

// Options controls synthetic data generation. Patients == 0 loads only the
// seed file.
type Options struct {
	Patients  int
	Months    int
	MaxVisits int
	Seed      int64
	Now       time.Time
}

func DefaultOptions() Options {
	return Options{Months: 12, MaxVisits: 4}
}

// Result summarizes a seed run.
type Result struct {
	Users            int           `json:"users"`
	UsersSkipped     int           `json:"users_skipped"`
	Schedules        int           `json:"schedules"`
	MedicinesCreated int           `json:"medicines_created"`
	MedicinesUpdated int           `json:"medicines_updated"`
	Patients         int           `json:"patients"`
	PatientsSkipped  int           `json:"patients_skipped"`
	Visits           int           `json:"visits"`
	Treatments       int           `json:"treatments"`
	Duration         time.Duration `json:"duration"`
}

const lookupLimit = 500

type Seeder struct {
	staff     Staff
	medicines Medicines
	store     Store
	logger    zerolog.Logger
}

func NewSeeder(staffSvc Staff, medicines Medicines, store Store, logger zerolog.Logger) *Seeder {
	return &Seeder{
		staff:     staffSvc,
		medicines: medicines,
		store:     store,
		logger:    logger.With().Str("component", "seed").Logger(),
	}
}

// Apply loads file (which may be nil) and then generates opts.Patients
// synthetic patients. Existing users are left untouched; medicines are
// upserted by name.
func (s *Seeder) Apply(ctx context.Context, file *SeedFile, opts Options) (*Result, error) {
	start := time.Now()
	ctx = auth.WithUser(ctx, uuid.Nil.String(), []string{auth.RoleAdmin})
	res := &Result{}

	if file != nil {
		if err := s.applyUsers(ctx, file.Users, res); err != nil {
			return res, err
		}
		if err := s.applyMedicines(ctx, file.Medicines, res); err != nil {
			return res, err
		}
	}

	if opts.Patients > 0 {
		if err := s.generate(ctx, opts, res); err != nil {
			return res, err
		}
	}

	res.Duration = time.Since(start)
	s.logger.Info().
		Int("users", res.Users).
		Int("schedules", res.Schedules).
		Int("medicines", res.MedicinesCreated+res.MedicinesUpdated).
		Int("patients", res.Patients).
		Int("visits", res.Visits).
		Dur("duration", res.Duration).
		Msg("seed applied")
	return res, nil
}

func (s *Seeder) applyUsers(ctx context.Context, users []UserSpec, res *Result) error {
	for _, u := range users {
		created, err := s.staff.Register(ctx, staff.RegisterInput{
			FirstName:      u.FirstName,
			LastName:       u.LastName,
			Email:          u.Email,
			Password:       u.Password,
			Role:           u.Role,
			Specialization: u.Specialization,
		})
		if errors.Is(err, staff.ErrEmailTaken) {
			res.UsersSkipped++
			s.logger.Debug().Str("email", u.Email).Msg("user exists, skipped")
			continue
		}
		if err != nil {
			return fmt.Errorf("user %s: %w", u.Email, err)
		}
		res.Users++

		for _, sc := range u.Schedules {
			sch := &staff.Schedule{DoctorID: created.ID, DayOfWeek: sc.Day, StartTime: sc.Start, EndTime: sc.End}
			if err := s.staff.CreateSchedule(ctx, sch); err != nil {
				return fmt.Errorf("schedule for %s on %s: %w", u.Email, sc.Day, err)
			}
			res.Schedules++
		}
	}
	return nil
}

func (s *Seeder) applyMedicines(ctx context.Context, specs []MedicineSpec, res *Result) error {
	for _, spec := range specs {
		m := &medicine.Medicine{
			Name:           strings.TrimSpace(spec.Name),
			Category:       spec.Category,
			DosageForm:     spec.DosageForm,
			Strength:       spec.Strength,
			Manufacturer:   spec.Manufacturer,
			Indication:     spec.Indication,
			Classification: spec.Classification,
			Stocks:         spec.Stocks,
		}
		if spec.ExpirationDate != "" {
			t, err := time.Parse(dates.DateLayout, spec.ExpirationDate)
			if err != nil {
				return fmt.Errorf("medicine %s: expiration_date must be YYYY-MM-DD", spec.Name)
			}
			m.ExpirationDate = &dates.Date{Time: t}
		}
		created, err := s.medicines.UpsertByName(ctx, m)
		if err != nil {
			return fmt.Errorf("medicine %s: %w", spec.Name, err)
		}
		if created {
			res.MedicinesCreated++
		} else {
			res.MedicinesUpdated++
		}
	}
	return nil
}

func (s *Seeder) generate(ctx context.Context, opts Options, res *Result) error {
	def := DefaultOptions()
	if opts.Months <= 0 {
		opts.Months = def.Months
	}
	if opts.MaxVisits <= 0 {
		opts.MaxVisits = def.MaxVisits
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	doctors, _, err := s.staff.ListDoctors(ctx, uuid.Nil, lookupLimit, 0)
	if err != nil {
		return fmt.Errorf("list doctors: %w", err)
	}
	doctorIDs := make([]uuid.UUID, len(doctors))
	for i, d := range doctors {
		doctorIDs[i] = d.ID
	}
	meds, _, err := s.medicines.List(ctx, "", lookupLimit, 0)
	if err != nil {
		return fmt.Errorf("list medicines: %w", err)
	}
	medicineIDs := make([]uuid.UUID, len(meds))
	for i, m := range meds {
		medicineIDs[i] = m.ID
	}
	if len(doctorIDs) == 0 {
		s.logger.Warn().Msg("no doctors registered, treatments will have no doctor")
	}

	gen := NewDataGenerator(opts.Seed)
	for i := 0; i < opts.Patients; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := gen.GenerateRecord(opts.Now, opts.Months, opts.MaxVisits, doctorIDs, medicineIDs)
		ok, err := s.store.WriteRecord(ctx, rec)
		if err != nil {
			return fmt.Errorf("patient %d: %w", i+1, err)
		}
		if !ok {
			res.PatientsSkipped++
			continue
		}
		res.Patients++
		res.Visits += len(rec.Visits)
		for _, v := range rec.Visits {
			if v.Treatment != nil {
				res.Treatments++
			}
		}
	}
	return nil
}
