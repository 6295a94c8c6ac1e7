package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-enroll-api/internal/models"
)

func expectUserLock(mock sqlmock.Sqlmock, id string, role models.UserRole) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, role FROM users WHERE id = $1 FOR UPDATE")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "role"}).AddRow(id, role))
}

func TestChangeRoleSwapsProfileRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	expectUserLock(mock, "u1", models.RoleStudent)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM student_profiles WHERE user_id = $1")).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO faculty_profiles").
		WithArgs(sqlmock.AnyArg(), "u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("u1", string(models.RoleFaculty), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	oldRole, err := repo.ChangeRole(context.Background(), "u1", models.RoleFaculty)
	require.NoError(t, err)
	require.Equal(t, models.RoleStudent, oldRole)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRoleNoopCommitsWithoutWrites(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	expectUserLock(mock, "u1", models.RoleStudent)
	mock.ExpectCommit()

	oldRole, err := repo.ChangeRole(context.Background(), "u1", models.RoleStudent)
	require.NoError(t, err)
	require.Equal(t, models.RoleStudent, oldRole)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRoleLastAdminRejected(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	expectUserLock(mock, "u1", models.RoleAdmin)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE role = $1")).
		WithArgs(string(models.RoleAdmin)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.ChangeRole(context.Background(), "u1", models.RoleStudent)
	require.ErrorIs(t, err, ErrLastAdmin)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRoleAdminDemotionAllowedWithPeers(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	expectUserLock(mock, "u1", models.RoleAdmin)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE role = $1")).
		WithArgs(string(models.RoleAdmin)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec("INSERT INTO student_profiles").
		WithArgs(sqlmock.AnyArg(), "u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("u1", string(models.RoleStudent), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	oldRole, err := repo.ChangeRole(context.Background(), "u1", models.RoleStudent)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, oldRole)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRoleUserMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, role FROM users WHERE id = $1 FOR UPDATE")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.ChangeRole(context.Background(), "missing", models.RoleFaculty)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteLastAdminRejected(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT role FROM users WHERE id = $1 FOR UPDATE")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(models.RoleAdmin))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE role = $1")).
		WithArgs(string(models.RoleAdmin)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), "u1")
	require.ErrorIs(t, err, ErrLastAdmin)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteNonAdminSkipsAdminCount(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT role FROM users WHERE id = $1 FOR UPDATE")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(models.RoleStudent))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id = $1")).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Delete(context.Background(), "u1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithProfileCreatesStudentRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO student_profiles").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user := &models.User{Email: "jane@example.edu", PasswordHash: "hash", FullName: "Jane", Role: models.RoleStudent, Active: true}
	err := repo.CreateWithProfile(context.Background(), user)
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithProfileAdminHasNoProfileRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user := &models.User{Email: "root@example.edu", PasswordHash: "hash", FullName: "Root", Role: models.RoleAdmin, Active: true}
	err := repo.CreateWithProfile(context.Background(), user)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
