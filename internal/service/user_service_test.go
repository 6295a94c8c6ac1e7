package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/campus-enroll-api/internal/authz"
	"github.com/noah-isme/campus-enroll-api/internal/models"
	"github.com/noah-isme/campus-enroll-api/internal/repository"
	appErrors "github.com/noah-isme/campus-enroll-api/pkg/errors"
)

type memUserRepo struct {
	users map[string]*models.User

	changeRoleErr error
	deleteErr     error
}

func newMemUserRepo(users ...*models.User) *memUserRepo {
	repo := &memUserRepo{users: make(map[string]*models.User)}
	for _, u := range users {
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		repo.users[u.ID] = u
	}
	return repo
}

func (m *memUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		out := *u
		return &out, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var users []models.User
	for _, u := range m.users {
		users = append(users, *u)
	}
	return users, len(users), nil
}

func (m *memUserRepo) CreateWithProfile(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	m.users[user.ID] = user
	return nil
}

func (m *memUserRepo) ChangeRole(ctx context.Context, id string, newRole models.UserRole) (models.UserRole, error) {
	if m.changeRoleErr != nil {
		return "", m.changeRoleErr
	}
	u, ok := m.users[id]
	if !ok {
		return "", sql.ErrNoRows
	}
	old := u.Role
	u.Role = newRole
	return old, nil
}

func (m *memUserRepo) Delete(ctx context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.users, id)
	return nil
}

func adminActor() authz.Actor {
	return authz.Actor{AccountID: "admin-1", Role: models.RoleAdmin}
}

func newUserService(repo userRepository, audit auditRecorder) *UserService {
	return NewUserService(repo, allowAll{}, audit, nil, nil)
}

func TestCreateUserHashesPassword(t *testing.T) {
	repo := newMemUserRepo()
	audit := &capturingAudit{}
	svc := newUserService(repo, audit)

	user, err := svc.Create(context.Background(), adminActor(), CreateUserRequest{
		Email:    "  Jane.Doe@Example.EDU ",
		FullName: "Jane Doe",
		Password: "s3cret!",
		Role:     models.RoleStudent,
	})
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.edu", user.Email)
	assert.Empty(t, user.PasswordHash, "hash must not leak in the response")

	stored, err := repo.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("s3cret!")))
	assert.Equal(t, []string{models.AuditEventUserCreated}, audit.kinds())
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	repo := newMemUserRepo(&models.User{Email: "jane@example.edu", Role: models.RoleStudent})
	svc := newUserService(repo, &capturingAudit{})

	_, err := svc.Create(context.Background(), adminActor(), CreateUserRequest{
		Email:    "jane@example.edu",
		FullName: "Jane Doe",
		Password: "s3cret!",
		Role:     models.RoleStudent,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	svc := newUserService(newMemUserRepo(), &capturingAudit{})

	_, err := svc.Create(context.Background(), adminActor(), CreateUserRequest{
		Email:    "jane@example.edu",
		FullName: "Jane Doe",
		Password: "s3cret!",
		Role:     models.UserRole("SUPERUSER"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestChangeRole(t *testing.T) {
	user := &models.User{ID: "u1", Email: "jane@example.edu", Role: models.RoleStudent}
	repo := newMemUserRepo(user)
	audit := &capturingAudit{}
	svc := newUserService(repo, audit)

	err := svc.ChangeRole(context.Background(), adminActor(), "u1", ChangeRoleRequest{Role: models.RoleFaculty})
	require.NoError(t, err)
	assert.Equal(t, models.RoleFaculty, repo.users["u1"].Role)
	assert.Equal(t, []string{models.AuditEventRoleAssigned}, audit.kinds())
}

func TestChangeRoleNoopSkipsAudit(t *testing.T) {
	repo := newMemUserRepo(&models.User{ID: "u1", Email: "jane@example.edu", Role: models.RoleStudent})
	audit := &capturingAudit{}
	svc := newUserService(repo, audit)

	err := svc.ChangeRole(context.Background(), adminActor(), "u1", ChangeRoleRequest{Role: models.RoleStudent})
	require.NoError(t, err)
	assert.Empty(t, audit.kinds())
}

func TestChangeRoleLastAdminProtected(t *testing.T) {
	repo := newMemUserRepo(&models.User{ID: "u1", Email: "root@example.edu", Role: models.RoleAdmin})
	repo.changeRoleErr = repository.ErrLastAdmin
	svc := newUserService(repo, &capturingAudit{})

	err := svc.ChangeRole(context.Background(), adminActor(), "u1", ChangeRoleRequest{Role: models.RoleStudent})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrLastAdmin))
}

func TestChangeRoleUserMissing(t *testing.T) {
	svc := newUserService(newMemUserRepo(), &capturingAudit{})

	err := svc.ChangeRole(context.Background(), adminActor(), "nope", ChangeRoleRequest{Role: models.RoleFaculty})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestDeleteUser(t *testing.T) {
	repo := newMemUserRepo(&models.User{ID: "u1", Email: "jane@example.edu", Role: models.RoleStudent})
	audit := &capturingAudit{}
	svc := newUserService(repo, audit)

	err := svc.Delete(context.Background(), adminActor(), "u1")
	require.NoError(t, err)
	assert.NotContains(t, repo.users, "u1")
	assert.Equal(t, []string{models.AuditEventUserDeleted}, audit.kinds())
}

func TestDeleteOwnAccountRejected(t *testing.T) {
	actor := adminActor()
	repo := newMemUserRepo(&models.User{ID: actor.AccountID, Email: "root@example.edu", Role: models.RoleAdmin})
	svc := newUserService(repo, &capturingAudit{})

	err := svc.Delete(context.Background(), actor, actor.AccountID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Contains(t, repo.users, actor.AccountID)
}

func TestDeleteLastAdminProtected(t *testing.T) {
	repo := newMemUserRepo(&models.User{ID: "u1", Email: "root@example.edu", Role: models.RoleAdmin})
	repo.deleteErr = repository.ErrLastAdmin
	svc := newUserService(repo, &capturingAudit{})

	err := svc.Delete(context.Background(), adminActor(), "u1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrLastAdmin))
}

func TestListUsersStripsHashes(t *testing.T) {
	repo := newMemUserRepo(
		&models.User{ID: "u1", Email: "a@example.edu", PasswordHash: "hash-a", Role: models.RoleStudent},
		&models.User{ID: "u2", Email: "b@example.edu", PasswordHash: "hash-b", Role: models.RoleFaculty},
	)
	svc := newUserService(repo, &capturingAudit{})

	users, pagination, err := svc.List(context.Background(), adminActor(), models.UserFilter{})
	require.NoError(t, err)
	require.Len(t, users, 2)
	for _, u := range users {
		assert.Empty(t, u.PasswordHash)
	}
	assert.Equal(t, 2, pagination.TotalCount)
}

func TestUserOperationsDenied(t *testing.T) {
	repo := newMemUserRepo(&models.User{ID: "u1", Email: "jane@example.edu", Role: models.RoleStudent})
	svc := NewUserService(repo, denyAll{}, &capturingAudit{}, nil, nil)
	actor := authz.Actor{AccountID: "s1", Role: models.RoleStudent, ProfileID: "sp1"}

	_, err := svc.Get(context.Background(), actor, "u1")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	err = svc.Delete(context.Background(), actor, "u1")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.Contains(t, repo.users, "u1")
}
