package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizlens/backend/internal/company/domain"
	"bizlens/backend/internal/security"
	userdomain "bizlens/backend/internal/user/domain"
)

// memRepo mirrors the Postgres guards: duplicate members and last-admin changes are rejected.
type memRepo struct {
	companies map[string]*domain.Company
	members   map[string]*domain.Membership // key: userID:companyID
	users     map[string]bool
}

func newMemRepo(users ...string) *memRepo {
	r := &memRepo{companies: map[string]*domain.Company{}, members: map[string]*domain.Membership{}, users: map[string]bool{}}
	for _, u := range users {
		r.users[u] = true
	}
	return r
}

func key(userID, companyID string) string { return userID + ":" + companyID }

func (r *memRepo) CreateWithAdmin(_ context.Context, c *domain.Company, admin *domain.Membership) error {
	r.companies[c.ID] = c
	r.members[key(admin.UserID, admin.CompanyID)] = admin
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*domain.Company, error) {
	return r.companies[id], nil
}

func (r *memRepo) GetMembership(_ context.Context, userID, companyID string) (*domain.Membership, error) {
	return r.members[key(userID, companyID)], nil
}

func (r *memRepo) ListMembers(_ context.Context, companyID string) ([]*domain.Membership, error) {
	var out []*domain.Membership
	for _, m := range r.members {
		if m.CompanyID == companyID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memRepo) ListMembershipsByUser(context.Context, string) ([]*domain.Membership, error) {
	return nil, nil
}

func (r *memRepo) AddMember(_ context.Context, m *domain.Membership) error {
	if !r.users[m.UserID] {
		return domain.ErrUserNotFound
	}
	if _, ok := r.members[key(m.UserID, m.CompanyID)]; ok {
		return domain.ErrAlreadyMember
	}
	r.members[key(m.UserID, m.CompanyID)] = m
	return nil
}

func (r *memRepo) otherAdmin(userID, companyID string) bool {
	for _, m := range r.members {
		if m.CompanyID == companyID && m.Role == domain.RoleAdmin && m.UserID != userID {
			return true
		}
	}
	return false
}

func (r *memRepo) UpdateRole(_ context.Context, userID, companyID string, role domain.Role) (*domain.Membership, error) {
	m, ok := r.members[key(userID, companyID)]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}
	if m.Role == domain.RoleAdmin && role != domain.RoleAdmin && !r.otherAdmin(userID, companyID) {
		return nil, domain.ErrLastAdmin
	}
	m.Role = role
	return m, nil
}

func (r *memRepo) RemoveMember(_ context.Context, userID, companyID string) error {
	m, ok := r.members[key(userID, companyID)]
	if !ok {
		return domain.ErrMemberNotFound
	}
	if m.Role == domain.RoleAdmin && !r.otherAdmin(userID, companyID) {
		return domain.ErrLastAdmin
	}
	delete(r.members, key(userID, companyID))
	return nil
}

type mockUsers struct {
	byEmail map[string]*userdomain.User
	ensured []string
	err     error
}

func (m *mockUsers) Ensure(_ context.Context, id *security.Identity) (*userdomain.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.ensured = append(m.ensured, id.UserID)
	return &userdomain.User{ID: id.UserID}, nil
}

func (m *mockUsers) GetByEmail(_ context.Context, email string) (*userdomain.User, error) {
	return m.byEmail[email], nil
}

func TestCreate_CallerBecomesAdmin(t *testing.T) {
	repo := newMemRepo("u1")
	users := &mockUsers{}
	s := NewService(repo, users)

	c, err := s.Create(context.Background(), &security.Identity{UserID: "u1"}, " Acme ", "retail")
	require.NoError(t, err)
	assert.Equal(t, "Acme", c.Name)
	assert.Equal(t, domain.CompanyStatusActive, c.Status)
	assert.Equal(t, []string{"u1"}, users.ensured)

	m := repo.members[key("u1", c.ID)]
	require.NotNil(t, m)
	assert.Equal(t, domain.RoleAdmin, m.Role)
}

func TestCreate_Errors(t *testing.T) {
	_, err := NewService(newMemRepo(), &mockUsers{}).Create(context.Background(), &security.Identity{UserID: "u1"}, "  ", "")
	assert.ErrorIs(t, err, domain.ErrNameRequired)

	_, err = NewService(newMemRepo(), &mockUsers{err: errors.New("db down")}).Create(context.Background(), &security.Identity{UserID: "u1"}, "Acme", "")
	assert.Error(t, err)
}

func TestGet_NotFound(t *testing.T) {
	_, err := NewService(newMemRepo(), &mockUsers{}).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAddMember(t *testing.T) {
	repo := newMemRepo("u1", "u2", "u3")
	users := &mockUsers{byEmail: map[string]*userdomain.User{"bo@example.com": {ID: "u3"}}}
	s := NewService(repo, users)
	c, err := s.Create(context.Background(), &security.Identity{UserID: "u1"}, "Acme", "")
	require.NoError(t, err)

	m, err := s.AddMember(context.Background(), c.ID, "u2", "", "Analyst")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAnalyst, m.Role)

	m, err = s.AddMember(context.Background(), c.ID, "", "bo@example.com", "viewer")
	require.NoError(t, err)
	assert.Equal(t, "u3", m.UserID)

	testCases := []struct {
		name          string
		userID, email string
		role          string
		want          error
	}{
		{"duplicate", "u2", "", "viewer", domain.ErrAlreadyMember},
		{"bad role", "u2", "", "owner", domain.ErrInvalidRole},
		{"unknown email", "", "nobody@example.com", "viewer", domain.ErrUserNotFound},
		{"unknown user", "ghost", "", "viewer", domain.ErrUserNotFound},
		{"no target", "", "", "viewer", errMemberTarget},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.AddMember(context.Background(), c.ID, tc.userID, tc.email, tc.role)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLastAdminIsProtected(t *testing.T) {
	repo := newMemRepo("u1", "u2")
	s := NewService(repo, &mockUsers{})
	c, err := s.Create(context.Background(), &security.Identity{UserID: "u1"}, "Acme", "")
	require.NoError(t, err)

	_, err = s.UpdateRole(context.Background(), c.ID, "u1", "viewer")
	assert.ErrorIs(t, err, domain.ErrLastAdmin)
	assert.ErrorIs(t, s.RemoveMember(context.Background(), c.ID, "u1"), domain.ErrLastAdmin)

	_, err = s.AddMember(context.Background(), c.ID, "u2", "", "admin")
	require.NoError(t, err)

	m, err := s.UpdateRole(context.Background(), c.ID, "u1", "analyst")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAnalyst, m.Role)
	assert.ErrorIs(t, s.RemoveMember(context.Background(), c.ID, "u2"), domain.ErrLastAdmin)
	assert.NoError(t, s.RemoveMember(context.Background(), c.ID, "u1"))
	assert.ErrorIs(t, s.RemoveMember(context.Background(), c.ID, "u1"), domain.ErrMemberNotFound)
}
