package staff

import (
	"context"

	"github.com/google/uuid"
)

// UserFilter narrows user listings. Empty Roles matches every role.
type UserFilter struct {
	Roles     []string
	Active    bool
	ExcludeID uuid.UUID
}

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	List(ctx context.Context, f UserFilter, limit, offset int) ([]*User, int, error)
}

type DoctorRepository interface {
	Upsert(ctx context.Context, d *Doctor) error
	Get(ctx context.Context, userID uuid.UUID) (*Doctor, error)
}

type ScheduleRepository interface {
	Create(ctx context.Context, s *Schedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*Schedule, error)
	Update(ctx context.Context, s *Schedule) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Schedule, error)
}
