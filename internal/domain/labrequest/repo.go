package labrequest

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists lab requests. Update is optimistic: it succeeds only
// when the stored version equals r.Version, then bumps r.Version.
type Repository interface {
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	Update(ctx context.Context, r *Request) error
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Request, int, error)
}
