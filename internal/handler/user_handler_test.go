package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civic-portal-api/internal/dto"
	"github.com/noah-isme/civic-portal-api/internal/models"
	"github.com/noah-isme/civic-portal-api/internal/service"
)

type userServiceMock struct {
	filter   models.UserFilter
	verified dto.VerifyUserRequest
	admin    service.Actor
	disabled string
}

func (m *userServiceMock) List(_ context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	m.filter = filter
	return []models.User{{ID: "u-1"}}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, nil
}

func (m *userServiceMock) Get(_ context.Context, id string) (*models.User, error) {
	return &models.User{ID: id}, nil
}

func (m *userServiceMock) Verify(_ context.Context, admin service.Actor, id string, req dto.VerifyUserRequest) (*models.User, error) {
	m.admin = admin
	m.verified = req
	return &models.User{ID: id, VerificationStatus: req.Decision}, nil
}

func (m *userServiceMock) Deactivate(_ context.Context, _ service.Actor, id string) error {
	m.disabled = id
	return nil
}

func TestUserHandlerListFilters(t *testing.T) {
	svc := &userServiceMock{}
	h := NewUserHandler(svc)
	c, w := authedContext(http.MethodGet, "/users?verification=PENDING&role=PDO&active=true&page=2&page_size=5", nil, claimsFor(models.RoleAdmin, "admin-1"))

	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.filter.Verification)
	assert.Equal(t, models.VerificationPending, *svc.filter.Verification)
	require.NotNil(t, svc.filter.Role)
	assert.Equal(t, models.RolePDO, *svc.filter.Role)
	require.NotNil(t, svc.filter.Active)
	assert.True(t, *svc.filter.Active)
	assert.Equal(t, 2, svc.filter.Page)
	assert.Equal(t, 5, svc.filter.PageSize)
	assert.Equal(t, 1, decode(t, w).Pagination.TotalCount)
}

func TestUserHandlerVerify(t *testing.T) {
	svc := &userServiceMock{}
	h := NewUserHandler(svc)
	c, w := authedContext(http.MethodPost, "/users/u-9/verification", []byte(`{"decision":"REJECTED","reason":"wrong taluk"}`), claimsFor(models.RoleAdmin, "admin-1"))
	c.AddParam("id", "u-9")

	h.Verify(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin-1", svc.admin.ID)
	assert.Equal(t, models.VerificationRejected, svc.verified.Decision)
	assert.Equal(t, "wrong taluk", svc.verified.Reason)

	c, w = authedContext(http.MethodPost, "/users/u-9/deactivate", nil, claimsFor(models.RoleAdmin, "admin-1"))
	c.AddParam("id", "u-9")
	h.Deactivate(c)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "u-9", svc.disabled)
}
