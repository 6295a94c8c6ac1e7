package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/campus-enroll-api/internal/authz"
	"github.com/noah-isme/campus-enroll-api/internal/models"
	"github.com/noah-isme/campus-enroll-api/internal/repository"
	appErrors "github.com/noah-isme/campus-enroll-api/pkg/errors"
)

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	CreateWithProfile(ctx context.Context, user *models.User) error
	ChangeRole(ctx context.Context, id string, newRole models.UserRole) (models.UserRole, error)
	Delete(ctx context.Context, id string) error
}

// CreateUserRequest holds payload for provisioning accounts.
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	FullName string          `json:"full_name" validate:"required"`
	Password string          `json:"password" validate:"required,min=6"`
	Role     models.UserRole `json:"role" validate:"required"`
}

// ChangeRoleRequest holds payload for reassigning an account's role.
type ChangeRoleRequest struct {
	Role models.UserRole `json:"role" validate:"required"`
}

// UserService handles account provisioning and role management.
type UserService struct {
	repo      userRepository
	engine    authorizer
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs the user service.
func NewUserService(repo userRepository, engine authorizer, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, engine: engine, audit: audit, validator: validate, logger: logger}
}

// Create provisions an account together with its role-side profile row.
func (s *UserService) Create(ctx context.Context, actor authz.Actor, req CreateUserRequest) (*models.User, error) {
	if err := s.engine.Authorize(ctx, actor, authz.OpManageUsers, authz.Target{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	if !req.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         req.Role,
		Active:       true,
	}
	if err := s.repo.CreateWithProfile(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.audit.Record(ctx, auditEntry(actor, models.AuditEventUserCreated, map[string]interface{}{
		"user_id": user.ID,
		"email":   user.Email,
		"role":    user.Role,
	}))

	user.PasswordHash = ""
	return user, nil
}

// ChangeRole reassigns an account's role. Demoting the last remaining
// administrator is rejected so the system can never lock itself out.
func (s *UserService) ChangeRole(ctx context.Context, actor authz.Actor, userID string, req ChangeRoleRequest) error {
	if err := s.engine.Authorize(ctx, actor, authz.OpAssignRoles, authz.Target{AccountID: userID}); err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}
	if !req.Role.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}

	oldRole, err := s.repo.ChangeRole(ctx, userID, req.Role)
	if err != nil {
		switch {
		case err == sql.ErrNoRows:
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		case errors.Is(err, repository.ErrLastAdmin):
			return appErrors.ErrLastAdmin
		default:
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to change role")
		}
	}
	if oldRole == req.Role {
		return nil
	}

	s.audit.Record(ctx, auditEntry(actor, models.AuditEventRoleAssigned, map[string]interface{}{
		"user_id":  userID,
		"old_role": oldRole,
		"new_role": req.Role,
	}))
	return nil
}

// Delete removes an account. Admins cannot delete themselves, and the last
// remaining administrator cannot be deleted at all.
func (s *UserService) Delete(ctx context.Context, actor authz.Actor, userID string) error {
	if err := s.engine.Authorize(ctx, actor, authz.OpManageUsers, authz.Target{AccountID: userID}); err != nil {
		return err
	}
	if userID == actor.AccountID {
		return appErrors.Clone(appErrors.ErrValidation, "cannot delete your own account")
	}

	if err := s.repo.Delete(ctx, userID); err != nil {
		switch {
		case err == sql.ErrNoRows:
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		case errors.Is(err, repository.ErrLastAdmin):
			return appErrors.ErrLastAdmin
		default:
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
		}
	}

	s.audit.Record(ctx, auditEntry(actor, models.AuditEventUserDeleted, map[string]interface{}{
		"user_id": userID,
	}))
	return nil
}

// List returns accounts with pagination metadata.
func (s *UserService) List(ctx context.Context, actor authz.Actor, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if err := s.engine.Authorize(ctx, actor, authz.OpManageUsers, authz.Target{}); err != nil {
		return nil, nil, err
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return users, pagination, nil
}

// Get returns a single account.
func (s *UserService) Get(ctx context.Context, actor authz.Actor, userID string) (*models.User, error) {
	if err := s.engine.Authorize(ctx, actor, authz.OpManageUsers, authz.Target{AccountID: userID}); err != nil {
		return nil, err
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	user.PasswordHash = ""
	return user, nil
}
