package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-enroll-api/internal/models"
	appErrors "github.com/noah-isme/campus-enroll-api/pkg/errors"
)

type memAnnouncementRepo struct {
	posts []*models.CourseAnnouncement
	// courses a student may read, keyed by student profile id
	enrolledCourses map[string][]string
}

func newMemAnnouncementRepo() *memAnnouncementRepo {
	return &memAnnouncementRepo{enrolledCourses: make(map[string][]string)}
}

func (m *memAnnouncementRepo) Create(ctx context.Context, announcement *models.CourseAnnouncement) error {
	if announcement.ID == "" {
		announcement.ID = uuid.NewString()
	}
	m.posts = append(m.posts, announcement)
	return nil
}

func (m *memAnnouncementRepo) ListByFaculty(ctx context.Context, facultyID string, limit int) ([]models.CourseAnnouncementDetail, error) {
	var details []models.CourseAnnouncementDetail
	for _, p := range m.posts {
		if p.FacultyID == facultyID {
			details = append(details, models.CourseAnnouncementDetail{CourseAnnouncement: *p})
		}
	}
	return details, nil
}

func (m *memAnnouncementRepo) ListForStudent(ctx context.Context, studentID string, limit int) ([]models.CourseAnnouncementDetail, error) {
	courses := make(map[string]struct{})
	for _, id := range m.enrolledCourses[studentID] {
		courses[id] = struct{}{}
	}
	var details []models.CourseAnnouncementDetail
	for _, p := range m.posts {
		if _, ok := courses[p.CourseID]; ok {
			details = append(details, models.CourseAnnouncementDetail{CourseAnnouncement: *p})
		}
	}
	return details, nil
}

func TestPostAnnouncementDefaultsType(t *testing.T) {
	repo := newMemAnnouncementRepo()
	audit := &capturingAudit{}
	svc := NewAnnouncementService(repo, allowAll{}, audit, nil, nil)

	announcement, err := svc.Post(context.Background(), facultyActor("f1"), PostAnnouncementRequest{
		CourseID: "c1",
		Title:    "Midterm moved to Friday",
	})
	require.NoError(t, err)
	assert.Equal(t, models.AnnouncementTypeGeneral, announcement.Type)
	assert.Equal(t, "f1", announcement.FacultyID)
	assert.Equal(t, []string{models.AuditEventAnnouncementPosted}, audit.kinds())
}

func TestPostAnnouncementUnknownType(t *testing.T) {
	svc := NewAnnouncementService(newMemAnnouncementRepo(), allowAll{}, &capturingAudit{}, nil, nil)

	_, err := svc.Post(context.Background(), facultyActor("f1"), PostAnnouncementRequest{
		CourseID: "c1",
		Title:    "Hello",
		Type:     models.AnnouncementType("shouting"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestPostAnnouncementMissingTitle(t *testing.T) {
	svc := NewAnnouncementService(newMemAnnouncementRepo(), allowAll{}, &capturingAudit{}, nil, nil)

	_, err := svc.Post(context.Background(), facultyActor("f1"), PostAnnouncementRequest{CourseID: "c1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestPostAnnouncementDenied(t *testing.T) {
	repo := newMemAnnouncementRepo()
	svc := NewAnnouncementService(repo, denyAll{}, &capturingAudit{}, nil, nil)

	_, err := svc.Post(context.Background(), facultyActor("f1"), PostAnnouncementRequest{
		CourseID: "c-not-mine",
		Title:    "Hello",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.Empty(t, repo.posts)
}

func TestListOwnAnnouncements(t *testing.T) {
	repo := newMemAnnouncementRepo()
	svc := NewAnnouncementService(repo, allowAll{}, &capturingAudit{}, nil, nil)

	_, err := svc.Post(context.Background(), facultyActor("f1"), PostAnnouncementRequest{CourseID: "c1", Title: "One"})
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), facultyActor("f2"), PostAnnouncementRequest{CourseID: "c2", Title: "Two"})
	require.NoError(t, err)

	own, err := svc.ListOwn(context.Background(), facultyActor("f1"), 50)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "One", own[0].Title)
}

func TestListForStudentCoversEnrolledCoursesOnly(t *testing.T) {
	repo := newMemAnnouncementRepo()
	repo.enrolledCourses["s1"] = []string{"c1"}
	svc := NewAnnouncementService(repo, allowAll{}, &capturingAudit{}, nil, nil)

	_, err := svc.Post(context.Background(), facultyActor("f1"), PostAnnouncementRequest{CourseID: "c1", Title: "Visible"})
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), facultyActor("f1"), PostAnnouncementRequest{CourseID: "c2", Title: "Hidden"})
	require.NoError(t, err)

	feed, err := svc.ListForStudent(context.Background(), studentActor("s1"), 30)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "Visible", feed[0].Title)
}
