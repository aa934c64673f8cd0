package staff

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
)

// doctorListRoles includes the legacy "on-call" role name still present in
// older accounts.
var doctorListRoles = []string{auth.RoleDoctor, auth.RoleOnCallDoctor, "on-call"}

type Service struct {
	users     UserRepository
	doctors   DoctorRepository
	schedules ScheduleRepository
	tokens    *auth.TokenIssuer
	tx        db.TxRunner
}

func NewService(users UserRepository, doctors DoctorRepository, schedules ScheduleRepository, tokens *auth.TokenIssuer, tx db.TxRunner) *Service {
	if tx == nil {
		tx = db.NoTx{}
	}
	return &Service{users: users, doctors: doctors, schedules: schedules, tokens: tokens, tx: tx}
}

// -- Authentication --

func (s *Service) Authenticate(ctx context.Context, email, password string) (*auth.TokenPair, error) {
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !u.IsActive || !auth.CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.tokens.Issue(u.ID.String(), []string{u.Role})
}

// Refresh issues a new access token as long as the account is still active.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.Parse(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return "", err
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", fmt.Errorf("invalid subject: %w", err)
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if !u.IsActive {
		return "", ErrInvalidCredentials
	}
	return s.tokens.Refresh(refreshToken)
}

func (s *Service) Verify(token string) error {
	_, err := s.tokens.Parse(token, "")
	return err
}

// -- Users --

func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if !auth.IsValidRole(in.Role) {
		return nil, fmt.Errorf("invalid role %q", in.Role)
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        email,
		PasswordHash: hash,
		Role:         in.Role,
		IsActive:     true,
		IsStaff:      in.IsStaff || in.Role == auth.RoleAdmin,
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if existing, err := s.users.GetByEmail(ctx, email); err == nil && existing != nil {
			return ErrEmailTaken
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		if auth.IsDoctorRole(u.Role) {
			spec := strings.TrimSpace(in.Specialization)
			if err := s.doctors.Upsert(ctx, &Doctor{UserID: u.ID, Specialization: spec, Timezone: "UTC"}); err != nil {
				return fmt.Errorf("create doctor profile: %w", err)
			}
			u.Specialization = &spec
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// List returns active users matching the raw ?role= filter, excluding the
// caller.
func (s *Service) List(ctx context.Context, roleFilter string, caller uuid.UUID, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, UserFilter{
		Roles:     auth.NormalizeRoleFilter(roleFilter),
		Active:    true,
		ExcludeID: caller,
	}, limit, offset)
}

func (s *Service) ListArchived(ctx context.Context, roleFilter string, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, UserFilter{
		Roles:  auth.NormalizeRoleFilter(roleFilter),
		Active: false,
	}, limit, offset)
}

func (s *Service) ListDoctors(ctx context.Context, caller uuid.UUID, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, UserFilter{Roles: doctorListRoles, Active: true, ExcludeID: caller}, limit, offset)
}

func (s *Service) ListSecretaries(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, UserFilter{Roles: []string{auth.RoleSecretary}, Active: true}, limit, offset)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*User, error) {
	var u *User
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		u, err = s.users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if in.FirstName != "" {
			u.FirstName = strings.TrimSpace(in.FirstName)
		}
		if in.LastName != "" {
			u.LastName = strings.TrimSpace(in.LastName)
		}
		if in.Email != "" {
			email := strings.ToLower(strings.TrimSpace(in.Email))
			if email != u.Email {
				if other, err := s.users.GetByEmail(ctx, email); err == nil && other.ID != u.ID {
					return ErrEmailTaken
				}
			}
			u.Email = email
		}
		if in.Role != "" {
			if !auth.IsValidRole(in.Role) {
				return fmt.Errorf("invalid role %q", in.Role)
			}
			u.Role = in.Role
		}
		if in.Password != "" {
			hash, err := auth.HashPassword(in.Password)
			if err != nil {
				return err
			}
			u.PasswordHash = hash
		}
		if err := s.users.Update(ctx, u); err != nil {
			return err
		}
		return s.syncDoctorProfile(ctx, u, in.Specialization)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// syncDoctorProfile keeps the doctors row in step with a doctor-role user.
// A nil specialization leaves the stored one untouched.
func (s *Service) syncDoctorProfile(ctx context.Context, u *User, spec *string) error {
	if !auth.IsDoctorRole(u.Role) {
		return nil
	}
	d, err := s.doctors.Get(ctx, u.ID)
	if errors.Is(err, ErrNotFound) {
		d = &Doctor{UserID: u.ID, Timezone: "UTC"}
	} else if err != nil {
		return err
	}
	if spec != nil {
		d.Specialization = strings.TrimSpace(*spec)
	}
	if err := s.doctors.Upsert(ctx, d); err != nil {
		return err
	}
	sp := d.Specialization
	u.Specialization = &sp
	return nil
}

// Archive deactivates the account. The row is kept.
func (s *Service) Archive(ctx context.Context, id uuid.UUID) error {
	return s.users.SetActive(ctx, id, false)
}

func (s *Service) Restore(ctx context.Context, id uuid.UUID) error {
	return s.users.SetActive(ctx, id, true)
}

// -- Current user --

func (s *Service) CurrentProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return profileOf(u), nil
}

func (s *Service) UpdateMe(ctx context.Context, id uuid.UUID, in UpdateMeInput) (*Profile, error) {
	var u *User
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		u, err = s.users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if in.FirstName != nil {
			u.FirstName = strings.TrimSpace(*in.FirstName)
		}
		if in.LastName != nil {
			u.LastName = strings.TrimSpace(*in.LastName)
		}
		if err := s.users.Update(ctx, u); err != nil {
			return err
		}
		return s.syncDoctorProfile(ctx, u, in.Specialization)
	})
	if err != nil {
		return nil, err
	}
	return profileOf(u), nil
}

// -- Schedules --

// canManageSchedule lets admins edit any schedule and doctors only their own.
func canManageSchedule(ctx context.Context, doctorID uuid.UUID) bool {
	return auth.HasRole(auth.RolesFromContext(ctx), auth.RoleAdmin) ||
		auth.UserIDFromContext(ctx) == doctorID.String()
}

func (s *Service) ListSchedules(ctx context.Context, doctorID uuid.UUID) ([]*Schedule, error) {
	return s.schedules.ListByDoctor(ctx, doctorID)
}

func (s *Service) CreateSchedule(ctx context.Context, sch *Schedule) error {
	if sch.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required")
	}
	if err := sch.Validate(); err != nil {
		return err
	}
	if !canManageSchedule(ctx, sch.DoctorID) {
		return ErrNotOwner
	}
	if _, err := s.doctors.Get(ctx, sch.DoctorID); err != nil {
		return err
	}
	normalizeSchedule(sch)
	return s.schedules.Create(ctx, sch)
}

func (s *Service) UpdateSchedule(ctx context.Context, sch *Schedule) error {
	existing, err := s.schedules.GetByID(ctx, sch.ID)
	if err != nil {
		return err
	}
	if !canManageSchedule(ctx, existing.DoctorID) {
		return ErrNotOwner
	}
	sch.DoctorID = existing.DoctorID
	if err := sch.Validate(); err != nil {
		return err
	}
	normalizeSchedule(sch)
	return s.schedules.Update(ctx, sch)
}

func (s *Service) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	existing, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !canManageSchedule(ctx, existing.DoctorID) {
		return ErrNotOwner
	}
	return s.schedules.Delete(ctx, id)
}

// normalizeSchedule rewrites times as zero-padded "HH:MM" so the unique
// constraint and string ordering hold. Callers validate first.
func normalizeSchedule(sch *Schedule) {
	start, _ := ParseClock(sch.StartTime)
	end, _ := ParseClock(sch.EndTime)
	sch.StartTime = FormatClock(start)
	sch.EndTime = FormatClock(end)
}
