package lab

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreateRequest(ctx context.Context, r *Request) error
	// GetRequest loads the request with its result, if any.
	GetRequest(ctx context.Context, id uuid.UUID) (*Request, error)
	// ListRequests lists newest first. An empty status lists all.
	ListRequests(ctx context.Context, status string) ([]*Request, error)
	SetRequestStatus(ctx context.Context, id uuid.UUID, status string) error
	CreateResult(ctx context.Context, res *Result) error
	GetResult(ctx context.Context, id uuid.UUID) (*Result, error)
	ListResults(ctx context.Context, patientID uuid.UUID) ([]*Result, error)
}
