// Package service implements company creation and membership management.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"bizlens/backend/internal/company/domain"
	companyrepo "bizlens/backend/internal/company/repository"
	"bizlens/backend/internal/platform/apierror"
	"bizlens/backend/internal/security"
	userdomain "bizlens/backend/internal/user/domain"
)

// UserDirectory resolves users for membership operations.
type UserDirectory interface {
	Ensure(ctx context.Context, id *security.Identity) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
}

var errMemberTarget = apierror.Invalid("user_id or email is required")

// Service manages companies and their memberships.
type Service struct {
	repo  companyrepo.Repository
	users UserDirectory
	now   func() time.Time
}

func NewService(repo companyrepo.Repository, users UserDirectory) *Service {
	return &Service{repo: repo, users: users, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a company and makes the caller its admin.
func (s *Service) Create(ctx context.Context, caller *security.Identity, name, industry string) (*domain.Company, error) {
	c := &domain.Company{
		ID:        uuid.NewString(),
		Name:      name,
		Industry:  strings.TrimSpace(industry),
		Status:    domain.CompanyStatusActive,
		CreatedAt: s.now(),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	// the membership row references users, so the caller's profile must exist first
	if _, err := s.users.Ensure(ctx, caller); err != nil {
		return nil, err
	}
	admin := &domain.Membership{
		ID:        uuid.NewString(),
		UserID:    caller.UserID,
		CompanyID: c.ID,
		Role:      domain.RoleAdmin,
		CreatedAt: c.CreatedAt,
	}
	if err := s.repo.CreateWithAdmin(ctx, c, admin); err != nil {
		return nil, fmt.Errorf("create company: %w", err)
	}
	return c, nil
}

// Get returns the company or domain.ErrNotFound.
func (s *Service) Get(ctx context.Context, companyID string) (*domain.Company, error) {
	c, err := s.repo.GetByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (s *Service) ListMembers(ctx context.Context, companyID string) ([]*domain.Membership, error) {
	return s.repo.ListMembers(ctx, companyID)
}

// AddMember adds an existing user, identified by id or email, with the given role.
func (s *Service) AddMember(ctx context.Context, companyID, userID, email, role string) (*domain.Membership, error) {
	r, err := domain.ParseRole(role)
	if err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		if strings.TrimSpace(email) == "" {
			return nil, errMemberTarget
		}
		u, err := s.users.GetByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, domain.ErrUserNotFound
		}
		userID = u.ID
	}
	m := &domain.Membership{
		ID:        uuid.NewString(),
		UserID:    userID,
		CompanyID: companyID,
		Role:      r,
		CreatedAt: s.now(),
	}
	if err := s.repo.AddMember(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateRole changes a member's role. Demoting the last admin fails with domain.ErrLastAdmin.
func (s *Service) UpdateRole(ctx context.Context, companyID, userID, role string) (*domain.Membership, error) {
	r, err := domain.ParseRole(role)
	if err != nil {
		return nil, err
	}
	m, err := s.repo.UpdateRole(ctx, userID, companyID, r)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, domain.ErrMemberNotFound
	}
	return m, nil
}

// RemoveMember deletes a membership. Removing the last admin fails with domain.ErrLastAdmin.
func (s *Service) RemoveMember(ctx context.Context, companyID, userID string) error {
	return s.repo.RemoveMember(ctx, userID, companyID)
}
