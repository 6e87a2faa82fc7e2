package diagnostic

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("diagnostic record not found")

// Repository stores diagnostic records. Records are never updated or
// deleted.
type Repository interface {
	Create(ctx context.Context, record *DiagnosticRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*DiagnosticRecord, error)
	// ListRecent returns up to limit records ordered by createdAt
	// descending. This is the analytics window query.
	ListRecent(ctx context.Context, limit int) ([]*DiagnosticRecord, error)
	// List returns a page of records ordered by createdAt descending,
	// with the total count.
	List(ctx context.Context, limit, offset int) ([]*DiagnosticRecord, int, error)
}
