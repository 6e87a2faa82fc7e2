package identity

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinsight/clinsight/internal/platform/cache"
)

const roleCacheTTL = 5 * time.Minute

type Service struct {
	repo   Repository
	cache  *cache.Client
	logger zerolog.Logger
}

func NewService(repo Repository, c *cache.Client, logger zerolog.Logger) *Service {
	return &Service{repo: repo, cache: c, logger: logger}
}

// IsAdmin reports whether the user's profile carries the admin role. The
// check fails closed: a missing profile, a lookup error, or an empty user
// id all mean false. Roles are cached read-through with a short TTL, so an
// out-of-band role change takes effect within minutes.
func (s *Service) IsAdmin(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}

	role, err := s.role(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user", userID).Msg("role lookup failed; treating as non-admin")
		return false
	}
	return role == RoleAdmin
}

func (s *Service) role(ctx context.Context, userID string) (string, error) {
	key := "role:" + userID
	if role, ok := s.cache.GetString(ctx, key); ok {
		return role, nil
	}

	profile, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}

	s.cache.SetString(ctx, key, profile.Role, roleCacheTTL)
	return profile.Role, nil
}

// Profile returns the user's stored profile.
func (s *Service) Profile(ctx context.Context, userID string) (*UserProfile, error) {
	return s.repo.GetByID(ctx, userID)
}

// EnsureProfile creates a doctor profile on first sign-in; existing
// profiles keep their role.
func (s *Service) EnsureProfile(ctx context.Context, userID, email, displayName string) (*UserProfile, error) {
	profile, err := s.repo.GetByID(ctx, userID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	profile = &UserProfile{
		ID:          userID,
		Email:       email,
		DisplayName: displayName,
		Role:        RoleDoctor,
	}
	if err := s.repo.Upsert(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}
