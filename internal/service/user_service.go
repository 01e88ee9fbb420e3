package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/civic-portal-api/internal/dto"
	"github.com/noah-isme/civic-portal-api/internal/models"
	appErrors "github.com/noah-isme/civic-portal-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	SetVerification(ctx context.Context, id string, status models.VerificationStatus, adminID string, reason *string, at time.Time) error
	Deactivate(ctx context.Context, id string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	CountPendingVerification(ctx context.Context) (int, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateAdminRequest bootstraps an administrator from the CLI.
type CreateAdminRequest struct {
	Email    string `validate:"required,email"`
	FullName string `validate:"required"`
	Password string `validate:"required,min=8"`
}

// UserService handles profile administration.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
	cache     *CacheService
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger, cache *CacheService) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger, cache: cache}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if filter.Role != nil && !filter.Role.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown role "+string(*filter.Role))
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	if users == nil {
		users = []models.User{}
	}

	page, pageSize := pageBounds(filter.Page, filter.PageSize)
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Verify records an admin decision on a pending profile.
func (s *UserService) Verify(ctx context.Context, admin Actor, id string, req dto.VerifyUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verification payload")
	}
	if admin.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can verify profiles")
	}
	var reason *string
	if req.Decision == models.VerificationRejected {
		trimmed := strings.TrimSpace(req.Reason)
		if trimmed == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "a reason is required when rejecting a profile")
		}
		reason = &trimmed
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.VerificationStatus != models.VerificationPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "profile is already "+strings.ToLower(string(user.VerificationStatus)))
	}

	now := time.Now().UTC()
	if err := s.repo.SetVerification(ctx, id, req.Decision, admin.ID, reason, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "profile was decided by another admin")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record verification")
	}
	if req.Decision == models.VerificationRejected {
		if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
			s.logger.Warn("failed to revoke tokens of rejected profile", zap.String("user_id", id), zap.Error(err))
		}
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &admin.ID,
		Action:     models.AuditActionUserVerify,
		Resource:   "users",
		ResourceID: &user.ID,
		OldValues:  auditValues(map[string]any{"verification": user.VerificationStatus}),
		NewValues:  auditValues(map[string]any{"verification": req.Decision, "reason": reason}),
		IPAddress:  admin.IP,
		UserAgent:  admin.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record verification audit log", zap.Error(err))
	}
	s.cache.InvalidateDashboards(ctx)

	user.VerificationStatus = req.Decision
	user.VerifiedBy = &admin.ID
	user.VerifiedAt = &now
	user.RejectionReason = reason
	user.UpdatedAt = now
	return user, nil
}

// Deactivate performs a soft delete and ends the user's sessions.
func (s *UserService) Deactivate(ctx context.Context, admin Actor, id string) error {
	if admin.ID == id {
		return appErrors.Clone(appErrors.ErrValidation, "admins cannot deactivate themselves")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate user")
	}
	if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
		s.logger.Warn("failed to revoke tokens of deactivated user", zap.String("user_id", id), zap.Error(err))
	}
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &admin.ID,
		Action:     models.AuditActionUserDeactivate,
		Resource:   "users",
		ResourceID: &user.ID,
		OldValues:  auditValues(map[string]any{"active": user.Active}),
		NewValues:  auditValues(map[string]any{"active": false}),
		IPAddress:  admin.IP,
		UserAgent:  admin.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record deactivate audit log", zap.Error(err))
	}
	return nil
}

// PendingVerifications counts profiles waiting for an admin.
func (s *UserService) PendingVerifications(ctx context.Context) (int, error) {
	n, err := s.repo.CountPendingVerification(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count pending verifications")
	}
	return n, nil
}

// CreateAdmin inserts a verified administrator. Admins cannot self-register.
func (s *UserService) CreateAdmin(ctx context.Context, req CreateAdminRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid admin payload")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	now := time.Now().UTC()
	user := &models.User{
		ID:                 uuid.NewString(),
		Email:              email,
		PasswordHash:       string(hash),
		FullName:           strings.TrimSpace(req.FullName),
		Role:               models.RoleAdmin,
		VerificationStatus: models.VerificationVerified,
		VerifiedAt:         &now,
		Active:             true,
		CreatedAt:          now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create admin")
	}
	s.logger.Info("admin created", zap.String("user_id", user.ID), zap.String("email", user.Email))
	return user, nil
}
