package medicine

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, m *Medicine) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error)
	// GetByName matches the name case-insensitively.
	GetByName(ctx context.Context, name string) (*Medicine, error)
	Update(ctx context.Context, m *Medicine) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, q string, limit, offset int) ([]*Medicine, int, error)
	Search(ctx context.Context, q string, limit int) ([]*Medicine, error)
	// AdjustStock adds delta to the stock and returns the new level.
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error)
	// UpsertByName inserts m or overwrites the medicine with the same name.
	UpsertByName(ctx context.Context, m *Medicine) (created bool, err error)
}
