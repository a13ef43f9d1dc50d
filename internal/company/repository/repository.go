package repository

import (
	"context"

	"bizlens/backend/internal/company/domain"
)

// Repository defines persistence for companies and memberships.
type Repository interface {
	// CreateWithAdmin inserts the company and an admin membership for userID in one transaction.
	CreateWithAdmin(ctx context.Context, c *domain.Company, admin *domain.Membership) error
	GetByID(ctx context.Context, id string) (*domain.Company, error)
	GetMembership(ctx context.Context, userID, companyID string) (*domain.Membership, error)
	ListMembers(ctx context.Context, companyID string) ([]*domain.Membership, error)
	ListMembershipsByUser(ctx context.Context, userID string) ([]*domain.Membership, error)
	AddMember(ctx context.Context, m *domain.Membership) error
	// UpdateRole changes a member's role. It returns domain.ErrLastAdmin instead of demoting the only admin.
	UpdateRole(ctx context.Context, userID, companyID string, role domain.Role) (*domain.Membership, error)
	// RemoveMember deletes a membership. It returns domain.ErrLastAdmin instead of removing the only admin.
	RemoveMember(ctx context.Context, userID, companyID string) error
}
