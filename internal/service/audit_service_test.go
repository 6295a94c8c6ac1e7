package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-enroll-api/internal/authz"
	"github.com/noah-isme/campus-enroll-api/internal/models"
	appErrors "github.com/noah-isme/campus-enroll-api/pkg/errors"
	"github.com/noah-isme/campus-enroll-api/pkg/jobs"
)

type memAuditRepo struct {
	mu        sync.Mutex
	entries   []*models.AuditLog
	createErr error
}

func (m *memAuditRepo) Create(ctx context.Context, entry *models.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memAuditRepo) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditLog
	for _, e := range m.entries {
		if filter.EventKind != "" && e.EventKind != filter.EventKind {
			continue
		}
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (m *memAuditRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func TestRecordWritesEntry(t *testing.T) {
	repo := &memAuditRepo{}
	svc := NewAuditService(repo, nil, zap.NewNop())

	svc.Record(context.Background(), auditEntry(adminActor(), models.AuditEventUserCreated, map[string]interface{}{"user_id": "u1"}))

	require.Equal(t, 1, repo.count())
	entry := repo.entries[0]
	assert.Equal(t, models.AuditEventUserCreated, entry.EventKind)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "admin-1", *entry.ActorID)
	assert.NotEmpty(t, entry.Details)
}

func TestRecordSwallowsWriteFailure(t *testing.T) {
	repo := &memAuditRepo{createErr: errors.New("db down")}
	svc := NewAuditService(repo, nil, zap.NewNop())

	// Must not panic or propagate; the audited operation already succeeded.
	svc.Record(context.Background(), auditEntry(adminActor(), models.AuditEventUserDeleted, nil))
	assert.Equal(t, 0, repo.count())
}

func TestRecordIgnoresNilEntry(t *testing.T) {
	repo := &memAuditRepo{}
	svc := NewAuditService(repo, nil, zap.NewNop())

	svc.Record(context.Background(), nil)
	assert.Equal(t, 0, repo.count())
}

func TestRecordAsyncWritesOffRequestPath(t *testing.T) {
	repo := &memAuditRepo{}
	svc := NewAuditService(repo, nil, zap.NewNop())
	svc.StartAsync(context.Background(), jobs.QueueConfig{Workers: 2, BufferSize: 16})
	defer svc.Stop()

	for i := 0; i < 5; i++ {
		svc.Record(context.Background(), auditEntry(adminActor(), models.AuditEventCourseCreated, nil))
	}

	require.Eventually(t, func() bool { return repo.count() == 5 }, time.Second, 10*time.Millisecond)
}

func TestListRequiresAuthorization(t *testing.T) {
	repo := &memAuditRepo{entries: []*models.AuditLog{{EventKind: models.AuditEventLogin}}}
	svc := NewAuditService(repo, nil, zap.NewNop())
	svc.SetAuthorizer(denyAll{})

	_, _, err := svc.List(context.Background(), authz.Actor{AccountID: "s1", Role: models.RoleStudent}, models.AuditFilter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestListFiltersByEventKind(t *testing.T) {
	repo := &memAuditRepo{entries: []*models.AuditLog{
		{EventKind: models.AuditEventLogin},
		{EventKind: models.AuditEventEnrollment},
		{EventKind: models.AuditEventLogin},
	}}
	svc := NewAuditService(repo, nil, zap.NewNop())
	svc.SetAuthorizer(allowAll{})

	logs, pagination, err := svc.List(context.Background(), adminActor(), models.AuditFilter{EventKind: models.AuditEventLogin})
	require.NoError(t, err)
	assert.Len(t, logs, 2)
	assert.Equal(t, 2, pagination.TotalCount)
	assert.Equal(t, 50, pagination.PageSize)
}

func TestAuditEntryOmitsEmptyActor(t *testing.T) {
	entry := auditEntry(authz.Actor{}, models.AuditEventUnauthorizedAccess, nil)
	assert.Nil(t, entry.ActorID)
	assert.Nil(t, entry.ActorRole)
	assert.Empty(t, entry.Details)
}
