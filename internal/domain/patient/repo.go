package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a patient id does not exist.
var ErrNotFound = errors.New("patient not found")

type Repository interface {
	Create(ctx context.Context, profile *PatientProfile) error
	GetByID(ctx context.Context, id uuid.UUID) (*PatientProfile, error)
	List(ctx context.Context, limit, offset int) ([]*PatientProfile, int, error)
}
