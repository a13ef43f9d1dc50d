package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"bizlens/backend/internal/security"
	"bizlens/backend/internal/user/domain"
)

type mockRepo struct {
	users   map[string]*domain.User
	created int
	updated int
	err     error
}

func newMockRepo() *mockRepo { return &mockRepo{users: map[string]*domain.User{}} }

func (m *mockRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *mockRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockRepo) Create(_ context.Context, u *domain.User) error {
	m.created++
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockRepo) Update(_ context.Context, u *domain.User) error {
	m.updated++
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func newTestService(repo *mockRepo) *Service {
	s := NewService(repo)
	s.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestEnsure_CreatesOnFirstUse(t *testing.T) {
	repo := newMockRepo()
	s := newTestService(repo)

	u, err := s.Ensure(context.Background(), &security.Identity{UserID: "u1", Email: "Ann@Example.com"})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if u.Email != "ann@example.com" {
		t.Errorf("email = %q, want lowercased", u.Email)
	}
	if u.Status != domain.UserStatusActive {
		t.Errorf("status = %q, want active", u.Status)
	}
	if repo.created != 1 {
		t.Errorf("created = %d, want 1", repo.created)
	}

	if _, err := s.Ensure(context.Background(), &security.Identity{UserID: "u1", Email: "ann@example.com"}); err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if repo.created != 1 || repo.updated != 0 {
		t.Errorf("second call wrote: created=%d updated=%d", repo.created, repo.updated)
	}
}

func TestEnsure_PlaceholderEmail(t *testing.T) {
	u, err := newTestService(newMockRepo()).Ensure(context.Background(), &security.Identity{UserID: "u9"})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if u.Email != "u9@users.invalid" {
		t.Errorf("email = %q", u.Email)
	}
}

func TestEnsure_RefreshesEmail(t *testing.T) {
	repo := newMockRepo()
	repo.users["u1"] = &domain.User{ID: "u1", Email: "old@example.com", Status: domain.UserStatusActive}
	u, err := newTestService(repo).Ensure(context.Background(), &security.Identity{UserID: "u1", Email: "new@example.com"})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if u.Email != "new@example.com" || repo.updated != 1 {
		t.Errorf("email = %q updated = %d", u.Email, repo.updated)
	}
}

func TestEnsure_Errors(t *testing.T) {
	disabled := newMockRepo()
	disabled.users["u1"] = &domain.User{ID: "u1", Email: "a@b.c", Status: domain.UserStatusDisabled}
	if _, err := newTestService(disabled).Ensure(context.Background(), &security.Identity{UserID: "u1"}); !errors.Is(err, domain.ErrDisabled) {
		t.Errorf("disabled err = %v, want ErrDisabled", err)
	}

	failing := newMockRepo()
	failing.err = errors.New("db down")
	if _, err := newTestService(failing).Ensure(context.Background(), &security.Identity{UserID: "u1"}); err == nil {
		t.Error("expected error from repository failure")
	}
}

func TestUpdateName(t *testing.T) {
	repo := newMockRepo()
	s := newTestService(repo)
	id := &security.Identity{UserID: "u1", Email: "a@example.com"}

	u, err := s.UpdateName(context.Background(), id, "  Ann Lee ")
	if err != nil {
		t.Fatalf("UpdateName: %v", err)
	}
	if u.FullName != "Ann Lee" || repo.users["u1"].FullName != "Ann Lee" {
		t.Errorf("full name = %q, stored %q", u.FullName, repo.users["u1"].FullName)
	}

	long := make([]byte, 201)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := s.UpdateName(context.Background(), id, string(long)); !errors.Is(err, domain.ErrNameTooLong) {
		t.Errorf("long name err = %v, want ErrNameTooLong", err)
	}
}
