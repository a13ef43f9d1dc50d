package notification

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bizlens/backend/internal/notification/domain"
	notifrepo "bizlens/backend/internal/notification/repository"
)

// Service creates and lists in-app notifications.
type Service struct {
	repo notifrepo.Repository
	now  func() time.Time
}

func NewService(repo notifrepo.Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Create validates n, assigns its id and timestamp, and stores it.
func (s *Service) Create(ctx context.Context, n *domain.Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	n.ID = uuid.NewString()
	n.CreatedAt = s.now()
	n.Read = false
	return s.repo.Create(ctx, n)
}

func (s *Service) List(ctx context.Context, companyID string, f notifrepo.Filter) ([]*domain.Notification, error) {
	return s.repo.List(ctx, companyID, f)
}

// MarkRead marks a notification read or returns domain.ErrNotFound.
func (s *Service) MarkRead(ctx context.Context, companyID, id, userID string) error {
	ok, err := s.repo.MarkRead(ctx, companyID, id, userID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}
