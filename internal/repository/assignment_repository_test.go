package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func expectFacultyExists(mock sqlmock.Sqlmock, facultyID string) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM faculty_profiles WHERE id = $1")).
		WithArgs(facultyID).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
}

func TestReplaceSwapsSetInOneTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectBegin()
	expectFacultyExists(mock, "f1")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM courses WHERE id IN ($1,$2)")).
		WithArgs("c1", "c2").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM faculty_assignments WHERE faculty_id = $1")).
		WithArgs("f1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO faculty_assignments").
		WithArgs(sqlmock.AnyArg(), "f1", "c1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO faculty_assignments").
		WithArgs(sqlmock.AnyArg(), "f1", "c2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Replace(context.Background(), "f1", []string{"c1", "c2"}, nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceEmptySetOnlyClears(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectBegin()
	expectFacultyExists(mock, "f1")
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM faculty_assignments WHERE faculty_id = $1")).
		WithArgs("f1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := repo.Replace(context.Background(), "f1", nil, nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceUnknownCourseRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectBegin()
	expectFacultyExists(mock, "f1")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM courses WHERE id IN ($1,$2)")).
		WithArgs("c1", "ghost").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := repo.Replace(context.Background(), "f1", []string{"c1", "ghost"}, nil)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceUnknownFacultyRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM faculty_profiles WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.Replace(context.Background(), "missing", []string{"c1"}, nil)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceUpdatesDepartment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	dept := "d1"
	mock.ExpectBegin()
	expectFacultyExists(mock, "f1")
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM faculty_assignments WHERE faculty_id = $1")).
		WithArgs("f1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE faculty_profiles SET department_id = $2 WHERE id = $1")).
		WithArgs("f1", dept).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Replace(context.Background(), "f1", nil, &dept)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExistsFalseOnNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM faculty_assignments WHERE faculty_id = $1 AND course_id = $2 LIMIT 1")).
		WithArgs("f1", "c9").
		WillReturnError(sql.ErrNoRows)

	ok, err := repo.Exists(context.Background(), "f1", "c9")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExistsTrue(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM faculty_assignments WHERE faculty_id = $1 AND course_id = $2 LIMIT 1")).
		WithArgs("f1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	ok, err := repo.Exists(context.Background(), "f1", "c1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
