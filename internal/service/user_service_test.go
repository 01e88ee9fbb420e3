package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-portal-api/internal/dto"
	"github.com/noah-isme/civic-portal-api/internal/models"
	appErrors "github.com/noah-isme/civic-portal-api/pkg/errors"
)

type mockUserRepo struct {
	users          map[string]*models.User
	listUsers      []models.User
	listCount      int
	listErr        error
	findByIDErr    error
	findByEmailErr error
	pending        int
	revoked        []string
	auditLogs      []*models.AuditLog
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	if m.listUsers != nil {
		return m.listUsers, m.listCount, nil
	}
	var users []models.User
	for _, u := range m.users {
		users = append(users, *u)
	}
	return users, len(users), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	if user, ok := m.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	for _, u := range m.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) SetVerification(ctx context.Context, id string, status models.VerificationStatus, adminID string, reason *string, at time.Time) error {
	user, ok := m.users[id]
	if !ok || user.VerificationStatus != models.VerificationPending {
		return sql.ErrNoRows
	}
	user.VerificationStatus = status
	user.VerifiedBy = &adminID
	user.RejectionReason = reason
	return nil
}

func (m *mockUserRepo) Deactivate(ctx context.Context, id string) error {
	if user, ok := m.users[id]; ok {
		user.Active = false
		return nil
	}
	return sql.ErrNoRows
}

func (m *mockUserRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revoked = append(m.revoked, userID)
	return nil
}

func (m *mockUserRepo) CountPendingVerification(ctx context.Context) (int, error) {
	return m.pending, nil
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

var testAdmin = Actor{ID: "admin-1", Role: models.RoleAdmin, Verified: true, Scope: models.Scope{Level: models.ScopeAll}}

func TestUserServiceList(t *testing.T) {
	repo := &mockUserRepo{listUsers: []models.User{{ID: "1", Email: "a@example.com"}}, listCount: 1}
	svc := NewUserService(repo, validator.New(), zap.NewNop(), nil)
	users, pagination, err := svc.List(context.Background(), models.UserFilter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, pagination.TotalCount)
	assert.Equal(t, 10, pagination.PageSize)

	bad := models.UserRole("TEACHER")
	_, _, err = svc.List(context.Background(), models.UserFilter{Role: &bad})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceVerifyApproves(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"p1": {ID: "p1", Email: "pdo@example.com", Role: models.RolePDO, VerificationStatus: models.VerificationPending, Active: true},
	}}
	svc := NewUserService(repo, validator.New(), zap.NewNop(), nil)

	user, err := svc.Verify(context.Background(), testAdmin, "p1", dto.VerifyUserRequest{Decision: models.VerificationVerified})
	require.NoError(t, err)
	assert.Equal(t, models.VerificationVerified, user.VerificationStatus)
	assert.Equal(t, "admin-1", *user.VerifiedBy)
	assert.Equal(t, models.VerificationVerified, repo.users["p1"].VerificationStatus)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionUserVerify, repo.auditLogs[0].Action)
	assert.Empty(t, repo.revoked)
}

func TestUserServiceVerifyRejectNeedsReason(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"t1": {ID: "t1", Role: models.RoleTDO, VerificationStatus: models.VerificationPending},
	}}
	svc := NewUserService(repo, validator.New(), zap.NewNop(), nil)

	_, err := svc.Verify(context.Background(), testAdmin, "t1", dto.VerifyUserRequest{Decision: models.VerificationRejected})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	user, err := svc.Verify(context.Background(), testAdmin, "t1", dto.VerifyUserRequest{Decision: models.VerificationRejected, Reason: " wrong taluk "})
	require.NoError(t, err)
	assert.Equal(t, "wrong taluk", *user.RejectionReason)
	assert.Equal(t, []string{"t1"}, repo.revoked)
}

func TestUserServiceVerifyAlreadyDecided(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"v1": {ID: "v1", Role: models.RoleVillager, VerificationStatus: models.VerificationVerified},
	}}
	svc := NewUserService(repo, validator.New(), zap.NewNop(), nil)

	_, err := svc.Verify(context.Background(), testAdmin, "v1", dto.VerifyUserRequest{Decision: models.VerificationVerified})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = svc.Verify(context.Background(), Actor{ID: "x", Role: models.RoleDDO}, "v1", dto.VerifyUserRequest{Decision: models.VerificationVerified})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUserServiceDeactivate(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"1": {ID: "1", Email: "a@example.com", Role: models.RoleVillager, Active: true}}}
	svc := NewUserService(repo, validator.New(), zap.NewNop(), nil)

	require.NoError(t, svc.Deactivate(context.Background(), testAdmin, "1"))
	assert.False(t, repo.users["1"].Active)
	assert.Equal(t, []string{"1"}, repo.revoked)
	assert.NotEmpty(t, repo.auditLogs)

	err := svc.Deactivate(context.Background(), testAdmin, testAdmin.ID)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceCreateAdmin(t *testing.T) {
	repo := &mockUserRepo{users: make(map[string]*models.User)}
	svc := NewUserService(repo, validator.New(), zap.NewNop(), nil)

	user, err := svc.CreateAdmin(context.Background(), CreateAdminRequest{Email: "ROOT@example.com", FullName: "Root", Password: "changeme1"})
	require.NoError(t, err)
	assert.Equal(t, "root@example.com", user.Email)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.True(t, user.Verified())

	_, err = svc.CreateAdmin(context.Background(), CreateAdminRequest{Email: "root@example.com", FullName: "Root", Password: "changeme1"})
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
