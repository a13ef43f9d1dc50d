package domain

import (
	"strings"
	"time"

	"bizlens/backend/internal/platform/apierror"
)

// Company is a tenant. Every dataset, rule and notification belongs to one.
type Company struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Industry  string        `json:"industry,omitempty"`
	Status    CompanyStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

type CompanyStatus string

const (
	CompanyStatusActive    CompanyStatus = "active"
	CompanyStatusSuspended CompanyStatus = "suspended"
)

// Membership links a user to a company with a role.
type Membership struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	CompanyID   string    `json:"company_id"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	Email       string    `json:"email,omitempty"`
	FullName    string    `json:"full_name,omitempty"`
	CompanyName string    `json:"company_name,omitempty"`
}

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAnalyst Role = "analyst"
	RoleViewer  Role = "viewer"
)

var (
	ErrNotFound       = apierror.NotFound("company not found")
	ErrMemberNotFound = apierror.NotFound("membership not found")
	ErrUserNotFound   = apierror.NotFound("user not found; they must sign in once before being added")
	ErrAlreadyMember  = apierror.Conflict("user is already a member of this company")
	ErrLastAdmin      = apierror.Conflict("cannot remove or demote the last admin")
	ErrInvalidRole    = apierror.Invalid("role must be admin, analyst, or viewer")
	ErrNameRequired   = apierror.Invalid("name is required")
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleAnalyst, RoleViewer:
		return r, nil
	default:
		return "", ErrInvalidRole
	}
}

// Validate validates the company for persistence. Returns an error describing the first validation failure.
func (c *Company) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return ErrNameRequired
	}
	if c.Status == "" {
		c.Status = CompanyStatusActive
	}
	return nil
}
