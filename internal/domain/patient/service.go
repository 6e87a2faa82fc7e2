package patient

import (
	"context"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, profile *PatientProfile, userID string) error {
	if err := profile.Validate(); err != nil {
		return err
	}
	if userID != "" {
		profile.CreatedBy = &userID
	}
	return s.repo.Create(ctx, profile)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*PatientProfile, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*PatientProfile, int, error) {
	return s.repo.List(ctx, limit, offset)
}
