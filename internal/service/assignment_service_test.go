package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-enroll-api/internal/authz"
	"github.com/noah-isme/campus-enroll-api/internal/models"
	appErrors "github.com/noah-isme/campus-enroll-api/pkg/errors"
)

type memAssignmentRepo struct {
	sets       map[string][]string
	replaceErr error
}

func newMemAssignmentRepo() *memAssignmentRepo {
	return &memAssignmentRepo{sets: make(map[string][]string)}
}

func (m *memAssignmentRepo) Exists(ctx context.Context, facultyID, courseID string) (bool, error) {
	for _, id := range m.sets[facultyID] {
		if id == courseID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memAssignmentRepo) ListByFaculty(ctx context.Context, facultyID string) ([]models.FacultyAssignmentDetail, error) {
	var details []models.FacultyAssignmentDetail
	for _, id := range m.sets[facultyID] {
		details = append(details, models.FacultyAssignmentDetail{
			FacultyAssignment: models.FacultyAssignment{FacultyID: facultyID, CourseID: id},
		})
	}
	return details, nil
}

func (m *memAssignmentRepo) Replace(ctx context.Context, facultyID string, courseIDs []string, departmentID *string) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.sets[facultyID] = courseIDs
	return nil
}

func facultyActor(profileID string) authz.Actor {
	return authz.Actor{AccountID: "acct-" + profileID, Role: models.RoleFaculty, ProfileID: profileID}
}

func TestReplaceAssignmentsSwapsWholeSet(t *testing.T) {
	repo := newMemAssignmentRepo()
	repo.sets["f1"] = []string{"c1", "c2"}
	audit := &capturingAudit{}
	svc := NewAssignmentService(repo, allowAll{}, audit, nil, nil)

	err := svc.Replace(context.Background(), adminActor(), "f1", ReplaceAssignmentsRequest{CourseIDs: []string{"c3"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c3"}, repo.sets["f1"])
	assert.Equal(t, []string{models.AuditEventAssignmentsReplaced}, audit.kinds())
}

func TestReplaceAssignmentsDeduplicates(t *testing.T) {
	repo := newMemAssignmentRepo()
	svc := NewAssignmentService(repo, allowAll{}, &capturingAudit{}, nil, nil)

	err := svc.Replace(context.Background(), adminActor(), "f1", ReplaceAssignmentsRequest{
		CourseIDs: []string{"c1", "c2", "c1", "", "c2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, repo.sets["f1"])
}

func TestReplaceAssignmentsEmptySetClears(t *testing.T) {
	repo := newMemAssignmentRepo()
	repo.sets["f1"] = []string{"c1"}
	svc := NewAssignmentService(repo, allowAll{}, &capturingAudit{}, nil, nil)

	err := svc.Replace(context.Background(), adminActor(), "f1", ReplaceAssignmentsRequest{CourseIDs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, repo.sets["f1"])
}

func TestReplaceAssignmentsUnknownFaculty(t *testing.T) {
	repo := newMemAssignmentRepo()
	repo.replaceErr = sql.ErrNoRows
	svc := NewAssignmentService(repo, allowAll{}, &capturingAudit{}, nil, nil)

	err := svc.Replace(context.Background(), adminActor(), "missing", ReplaceAssignmentsRequest{CourseIDs: []string{"c1"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestReplaceAssignmentsDenied(t *testing.T) {
	repo := newMemAssignmentRepo()
	repo.sets["f1"] = []string{"c1"}
	svc := NewAssignmentService(repo, denyAll{}, &capturingAudit{}, nil, nil)

	err := svc.Replace(context.Background(), facultyActor("f2"), "f1", ReplaceAssignmentsRequest{CourseIDs: []string{"c9"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.Equal(t, []string{"c1"}, repo.sets["f1"], "denied call must not touch the set")
}

func TestListOwnAssignments(t *testing.T) {
	repo := newMemAssignmentRepo()
	repo.sets["f1"] = []string{"c1", "c2"}
	svc := NewAssignmentService(repo, allowAll{}, &capturingAudit{}, nil, nil)

	assignments, err := svc.ListOwn(context.Background(), facultyActor("f1"))
	require.NoError(t, err)
	assert.Len(t, assignments, 2)
}

func TestListForFacultyAsAdmin(t *testing.T) {
	repo := newMemAssignmentRepo()
	repo.sets["f1"] = []string{"c1"}
	svc := NewAssignmentService(repo, allowAll{}, &capturingAudit{}, nil, nil)

	assignments, err := svc.ListForFaculty(context.Background(), adminActor(), "f1")
	require.NoError(t, err)
	assert.Len(t, assignments, 1)
}
