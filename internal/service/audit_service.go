package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-enroll-api/internal/authz"
	"github.com/noah-isme/campus-enroll-api/internal/models"
	appErrors "github.com/noah-isme/campus-enroll-api/pkg/errors"
	"github.com/noah-isme/campus-enroll-api/pkg/jobs"
)

type auditRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error)
}

type authorizer interface {
	Authorize(ctx context.Context, actor authz.Actor, op authz.Operation, target authz.Target) error
}

// auditRecorder is the write side other services depend on.
type auditRecorder interface {
	Record(ctx context.Context, entry *models.AuditLog)
}

// AuditService appends security events to the audit trail and serves the
// admin review endpoint. Writes are best-effort: a failed write is logged
// but never fails the operation that produced the event.
type AuditService struct {
	repo       auditRepository
	queue      *jobs.Queue
	authorizer authorizer
	metrics    *MetricsService
	logger     *zap.Logger
}

// NewAuditService constructs the audit service. The authorizer is attached
// later via SetAuthorizer because the engine itself records denials here.
func NewAuditService(repo auditRepository, metrics *MetricsService, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, metrics: metrics, logger: logger}
}

// SetAuthorizer wires the authorization engine used to gate List.
func (s *AuditService) SetAuthorizer(a authorizer) {
	s.authorizer = a
}

// StartAsync switches Record to a background worker pool. Events are
// written off the request path; the queue retries failed inserts.
func (s *AuditService) StartAsync(ctx context.Context, cfg jobs.QueueConfig) {
	if cfg.Logger == nil {
		cfg.Logger = s.logger
	}
	queue := jobs.NewQueue("audit", func(ctx context.Context, job jobs.Job) error {
		entry, ok := job.Payload.(*models.AuditLog)
		if !ok {
			s.logger.Error("audit job carries unexpected payload", zap.String("job_id", job.ID))
			return nil
		}
		return s.repo.Create(ctx, entry)
	}, cfg)
	queue.Start(ctx)
	s.queue = queue
}

// Stop drains the background queue if async recording was enabled.
func (s *AuditService) Stop() {
	if s.queue != nil {
		s.queue.Stop()
	}
}

// Record appends an audit event. It never returns an error: audit failures
// must not veto the operation being audited, so they are logged instead.
func (s *AuditService) Record(ctx context.Context, entry *models.AuditLog) {
	if entry == nil {
		return
	}
	s.observe(entry)

	if s.queue != nil {
		if err := s.queue.Enqueue(jobs.Job{ID: entry.ID, Type: entry.EventKind, Payload: entry}); err == nil {
			return
		}
		// Queue rejected the job (stopped or shutting down); fall through
		// to a direct write so the event still has a chance to land.
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error("audit write failed",
			zap.String("event_kind", entry.EventKind),
			zap.Error(err))
	}
}

// observe mirrors audit events into Prometheus counters so admission
// outcomes and denials are visible without querying the trail.
func (s *AuditService) observe(entry *models.AuditLog) {
	switch entry.EventKind {
	case models.AuditEventEnrollment:
		s.metrics.RecordEnrollmentDecision(string(models.EnrollmentStatusEnrolled))
	case models.AuditEventEnrollmentWaitlisted:
		s.metrics.RecordEnrollmentDecision(string(models.EnrollmentStatusWaitlisted))
	case models.AuditEventUnauthorizedAccess, models.AuditEventTamperingAttempt, models.AuditEventUnauthorizedCourseAccess:
		s.metrics.RecordAuthzDenial(entry.EventKind)
	}
}

// auditEntry builds an audit record attributed to the acting caller.
func auditEntry(actor authz.Actor, eventKind string, details map[string]interface{}) *models.AuditLog {
	entry := &models.AuditLog{EventKind: eventKind}
	if actor.AccountID != "" {
		id := actor.AccountID
		entry.ActorID = &id
	}
	if actor.Role != "" {
		role := actor.Role
		entry.ActorRole = &role
	}
	if len(details) > 0 {
		payload, err := json.Marshal(details)
		if err == nil {
			entry.Details = payload
		}
	}
	return entry
}

// List returns audit records for admin review, newest first.
func (s *AuditService) List(ctx context.Context, actor authz.Actor, filter models.AuditFilter) ([]models.AuditLog, *models.Pagination, error) {
	if err := s.authorizer.Authorize(ctx, actor, authz.OpViewAuditLogs, authz.Target{}); err != nil {
		return nil, nil, err
	}

	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return logs, pagination, nil
}
