package domain

import (
	"strings"
	"time"

	"bizlens/backend/internal/platform/apierror"
)

// User is a profile keyed by the auth provider's subject id.
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name,omitempty"`
	Status    UserStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

var (
	ErrEmailRequired = apierror.Invalid("email is required")
	ErrNameTooLong   = apierror.Invalid("full_name must be at most 200 characters")
	ErrDisabled      = apierror.Forbidden("user is disabled")
)

const maxNameLen = 200

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.FullName = strings.TrimSpace(u.FullName)
	if u.Email == "" {
		return ErrEmailRequired
	}
	if len(u.FullName) > maxNameLen {
		return ErrNameTooLong
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}
