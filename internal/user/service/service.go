// Package service keeps user profiles in sync with the identities presented in access tokens.
package service

import (
	"context"
	"fmt"
	"time"

	"bizlens/backend/internal/security"
	"bizlens/backend/internal/user/domain"
	userrepo "bizlens/backend/internal/user/repository"
)

// Service upserts and updates user profiles.
type Service struct {
	repo userrepo.Repository
	now  func() time.Time
}

// NewService returns a user service backed by repo.
func NewService(repo userrepo.Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Ensure returns the profile for the caller, creating it from the token claims on first use
// and refreshing the email when the auth provider reports a new one.
func (s *Service) Ensure(ctx context.Context, id *security.Identity) (*domain.User, error) {
	u, err := s.repo.GetByID(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	now := s.now()
	if u == nil {
		u = &domain.User{ID: id.UserID, Email: id.Email, CreatedAt: now, UpdatedAt: now}
		if u.Email == "" {
			// tokens without an email claim still need a unique placeholder
			u.Email = id.UserID + "@users.invalid"
		}
		if err := u.Validate(); err != nil {
			return nil, err
		}
		if err := s.repo.Create(ctx, u); err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		return u, nil
	}
	if u.Status == domain.UserStatusDisabled {
		return nil, domain.ErrDisabled
	}
	if id.Email != "" && id.Email != u.Email {
		u.Email = id.Email
		u.UpdatedAt = now
		if err := u.Validate(); err != nil {
			return nil, err
		}
		if err := s.repo.Update(ctx, u); err != nil {
			return nil, fmt.Errorf("update user email: %w", err)
		}
	}
	return u, nil
}

// UpdateName sets the caller's full name.
func (s *Service) UpdateName(ctx context.Context, id *security.Identity, fullName string) (*domain.User, error) {
	u, err := s.Ensure(ctx, id)
	if err != nil {
		return nil, err
	}
	u.FullName = fullName
	u.UpdatedAt = s.now()
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

// GetByEmail looks up a user by email; nil when absent.
func (s *Service) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.repo.GetByEmail(ctx, email)
}
