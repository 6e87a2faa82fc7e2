package identity

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no profile exists for a user id.
var ErrNotFound = errors.New("user profile not found")

type Repository interface {
	GetByID(ctx context.Context, id string) (*UserProfile, error)
	Upsert(ctx context.Context, profile *UserProfile) error
}
