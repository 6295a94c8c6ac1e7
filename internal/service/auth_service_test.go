package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/campus-enroll-api/internal/authz"
	"github.com/noah-isme/campus-enroll-api/internal/models"
	appErrors "github.com/noah-isme/campus-enroll-api/pkg/errors"
)

type memAuthRepo struct {
	users           map[string]*models.User
	studentProfiles map[string]*models.StudentProfile
	facultyProfiles map[string]*models.FacultyProfile
	lastLogin       map[string]time.Time
}

func newMemAuthRepo() *memAuthRepo {
	return &memAuthRepo{
		users:           make(map[string]*models.User),
		studentProfiles: make(map[string]*models.StudentProfile),
		facultyProfiles: make(map[string]*models.FacultyProfile),
		lastLogin:       make(map[string]time.Time),
	}
}

func (m *memAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLogin[id] = ts
	return nil
}

func (m *memAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *memAuthRepo) FindStudentProfileByUserID(ctx context.Context, userID string) (*models.StudentProfile, error) {
	if p, ok := m.studentProfiles[userID]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memAuthRepo) FindFacultyProfileByUserID(ctx context.Context, userID string) (*models.FacultyProfile, error) {
	if p, ok := m.facultyProfiles[userID]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memAuthRepo) addStudent(t *testing.T, email, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{ID: "u-" + email, Email: email, PasswordHash: string(hash), FullName: "Test Student", Role: models.RoleStudent, Active: true}
	m.users[user.ID] = user
	m.studentProfiles[user.ID] = &models.StudentProfile{ID: "sp-" + email, UserID: user.ID}
	return user
}

func testAuthConfig() AuthConfig {
	return AuthConfig{TokenSecret: "test-secret", TokenExpiry: time.Hour, Issuer: "campus-enroll"}
}

func TestLoginIssuesTokenWithProfileClaims(t *testing.T) {
	repo := newMemAuthRepo()
	user := repo.addStudent(t, "jane@example.edu", "s3cret!")
	audit := &capturingAudit{}
	svc := NewAuthService(repo, audit, nil, nil, testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "jane@example.edu", Password: "s3cret!"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, user.ID, resp.User.ID)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, "sp-jane@example.edu", claims.ProfileID)

	assert.Contains(t, repo.lastLogin, user.ID)
	assert.Equal(t, []string{models.AuditEventLogin}, audit.kinds())
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newMemAuthRepo()
	repo.addStudent(t, "jane@example.edu", "s3cret!")
	svc := NewAuthService(repo, &capturingAudit{}, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "jane@example.edu", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestLoginUnknownEmailSameError(t *testing.T) {
	svc := NewAuthService(newMemAuthRepo(), &capturingAudit{}, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@example.edu", Password: "whatever"})
	require.Error(t, err)
	// Unknown email and wrong password are indistinguishable to the caller.
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestLoginInactiveAccount(t *testing.T) {
	repo := newMemAuthRepo()
	user := repo.addStudent(t, "jane@example.edu", "s3cret!")
	user.Active = false
	svc := NewAuthService(repo, &capturingAudit{}, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "jane@example.edu", Password: "s3cret!"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInactiveAccount))
}

func TestLoginMissingProfileFails(t *testing.T) {
	repo := newMemAuthRepo()
	user := repo.addStudent(t, "jane@example.edu", "s3cret!")
	delete(repo.studentProfiles, user.ID)
	svc := NewAuthService(repo, &capturingAudit{}, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "jane@example.edu", Password: "s3cret!"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}

func TestLoginAdminHasNoProfileClaim(t *testing.T) {
	repo := newMemAuthRepo()
	hash, err := bcrypt.GenerateFromPassword([]byte("root-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	repo.users["a1"] = &models.User{ID: "a1", Email: "root@example.edu", PasswordHash: string(hash), FullName: "Root", Role: models.RoleAdmin, Active: true}
	svc := NewAuthService(repo, &capturingAudit{}, nil, nil, testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "root@example.edu", Password: "root-pass"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Empty(t, claims.ProfileID)
}

func TestChangePassword(t *testing.T) {
	repo := newMemAuthRepo()
	user := repo.addStudent(t, "jane@example.edu", "old-pass")
	audit := &capturingAudit{}
	svc := NewAuthService(repo, audit, nil, nil, testAuthConfig())

	err := svc.ChangePassword(context.Background(), user.ID, models.ChangePasswordRequest{OldPassword: "old-pass", NewPassword: "new-pass"})
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users[user.ID].PasswordHash), []byte("new-pass")))
	assert.Equal(t, []string{models.AuditEventPasswordChange}, audit.kinds())
}

func TestChangePasswordWrongOldPassword(t *testing.T) {
	repo := newMemAuthRepo()
	user := repo.addStudent(t, "jane@example.edu", "old-pass")
	svc := NewAuthService(repo, &capturingAudit{}, nil, nil, testAuthConfig())

	err := svc.ChangePassword(context.Background(), user.ID, models.ChangePasswordRequest{OldPassword: "nope", NewPassword: "new-pass"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

type noAssignments struct{}

func (noAssignments) Exists(ctx context.Context, facultyID, courseID string) (bool, error) {
	return false, nil
}

func TestIdentityRefreshesRoleFromStore(t *testing.T) {
	repo := newMemAuthRepo()
	hash, err := bcrypt.GenerateFromPassword([]byte("root-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	repo.users["a1"] = &models.User{ID: "a1", Email: "root@example.edu", PasswordHash: string(hash), FullName: "Root", Role: models.RoleAdmin, Active: true}
	svc := NewAuthService(repo, &capturingAudit{}, nil, nil, testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "root@example.edu", Password: "root-pass"})
	require.NoError(t, err)
	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, claims.Role)

	// Demote the account behind the still-valid token.
	repo.users["a1"].Role = models.RoleStudent
	repo.studentProfiles["a1"] = &models.StudentProfile{ID: "sp-a1", UserID: "a1"}

	refreshed, err := svc.Identity(context.Background(), claims)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, refreshed.Role)
	assert.Equal(t, "sp-a1", refreshed.ProfileID)
}

func TestDemotedAdminLosesAdminAccessImmediately(t *testing.T) {
	repo := newMemAuthRepo()
	hash, err := bcrypt.GenerateFromPassword([]byte("root-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	repo.users["a1"] = &models.User{ID: "a1", Email: "root@example.edu", PasswordHash: string(hash), FullName: "Root", Role: models.RoleAdmin, Active: true}
	svc := NewAuthService(repo, &capturingAudit{}, nil, nil, testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "root@example.edu", Password: "root-pass"})
	require.NoError(t, err)
	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)

	repo.users["a1"].Role = models.RoleStudent
	repo.studentProfiles["a1"] = &models.StudentProfile{ID: "sp-a1", UserID: "a1"}

	refreshed, err := svc.Identity(context.Background(), claims)
	require.NoError(t, err)

	audit := &capturingAudit{}
	engine := authz.NewEngine(noAssignments{}, audit, nil)
	actor := authz.Actor{AccountID: refreshed.UserID, Role: refreshed.Role, ProfileID: refreshed.ProfileID}

	// The next authorization check already sees the demoted role.
	authzErr := engine.Authorize(context.Background(), actor, authz.OpManageUsers, authz.Target{})
	require.Error(t, authzErr)
	assert.True(t, errors.Is(authzErr, appErrors.ErrForbidden))
}

func TestIdentityRejectsDeactivatedAccount(t *testing.T) {
	repo := newMemAuthRepo()
	repo.addStudent(t, "jane@example.edu", "s3cret!")
	svc := NewAuthService(repo, &capturingAudit{}, nil, nil, testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "jane@example.edu", Password: "s3cret!"})
	require.NoError(t, err)
	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)

	repo.users[claims.UserID].Active = false

	_, err = svc.Identity(context.Background(), claims)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInactiveAccount))
}

func TestIdentityRejectsDeletedAccount(t *testing.T) {
	repo := newMemAuthRepo()
	repo.addStudent(t, "jane@example.edu", "s3cret!")
	svc := NewAuthService(repo, &capturingAudit{}, nil, nil, testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "jane@example.edu", Password: "s3cret!"})
	require.NoError(t, err)
	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)

	delete(repo.users, claims.UserID)

	_, err = svc.Identity(context.Background(), claims)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	repo := newMemAuthRepo()
	repo.addStudent(t, "jane@example.edu", "s3cret!")
	svc := NewAuthService(repo, &capturingAudit{}, nil, nil, testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "jane@example.edu", Password: "s3cret!"})
	require.NoError(t, err)

	other := NewAuthService(repo, &capturingAudit{}, nil, nil, AuthConfig{TokenSecret: "different-secret", TokenExpiry: time.Hour})
	_, err = other.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestValidateTokenExpired(t *testing.T) {
	repo := newMemAuthRepo()
	repo.addStudent(t, "jane@example.edu", "s3cret!")
	cfg := testAuthConfig()
	cfg.TokenExpiry = -time.Minute
	svc := NewAuthService(repo, &capturingAudit{}, nil, nil, cfg)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "jane@example.edu", Password: "s3cret!"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}
