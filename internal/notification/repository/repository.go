package repository

import (
	"context"

	"bizlens/backend/internal/notification/domain"
)

// Filter selects the notifications visible to one user of a company.
type Filter struct {
	UserID     string
	UnreadOnly bool
	Limit      int32
	Offset     int32
}

// Repository defines persistence for in-app notifications.
type Repository interface {
	Create(ctx context.Context, n *domain.Notification) error
	// List returns company-wide notifications plus those addressed to f.UserID, newest first.
	List(ctx context.Context, companyID string, f Filter) ([]*domain.Notification, error)
	// MarkRead sets read=true on a notification visible to userID. It reports whether one matched.
	MarkRead(ctx context.Context, companyID, id, userID string) (bool, error)
}
