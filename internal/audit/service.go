package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ccm-platform/carbon-admin/internal/logger"
	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/ccm-platform/carbon-admin/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Actor identifies who performed an audited action and from where.
// A zero Actor means the system itself (event consumers, sweeps).
type Actor struct {
	AdminUserID *int64
	Username    string
	IP          *string
	TraceID     string
}

// NewTraceID returns a fresh trace identifier for a request chain.
// Trace IDs are UUIDs to match what the sibling services put in their
// envelope metadata; event IDs stay ULIDs for sortability.
func NewTraceID() string { return uuid.NewString() }

// Service appends to the audit trail. Recording never fails the caller:
// an admin action must not be rolled back because its audit write
// failed, so errors are logged and swallowed. The ClickHouse mirror is
// best-effort on top of that.
type Service struct {
	repo   repository.AuditLogRepository
	mirror repository.CHAuditRepository // nil disables mirroring
}

func NewService(repo repository.AuditLogRepository, mirror repository.CHAuditRepository) *Service {
	return &Service{repo: repo, mirror: mirror}
}

// Record writes one entry outside any caller transaction.
func (s *Service) Record(ctx context.Context, actor Actor, action, resourceType, resourceID, description string, oldValue, newValue any) {
	e := s.build(actor, action, resourceType, resourceID, description, oldValue, newValue)
	if err := s.repo.Insert(ctx, nil, e); err != nil {
		logger.Log.Error("audit write failed",
			zap.String("action", action),
			zap.String("resource_id", resourceID),
			zap.Error(err))
		return
	}
	s.mirrorEntry(ctx, e)
}

// RecordTx writes one entry inside the caller's transaction, so the
// entry commits or rolls back with the mutation it describes. Unlike
// Record this returns the error: failing the tx is the caller's call.
func (s *Service) RecordTx(ctx context.Context, tx *sqlx.Tx, actor Actor, action, resourceType, resourceID, description string, oldValue, newValue any) error {
	e := s.build(actor, action, resourceType, resourceID, description, oldValue, newValue)
	return s.repo.Insert(ctx, tx, e)
}

func (s *Service) List(ctx context.Context, f repository.AuditListFilter) ([]model.AuditLogEntry, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) build(actor Actor, action, resourceType, resourceID, description string, oldValue, newValue any) *model.AuditLogEntry {
	e := &model.AuditLogEntry{
		AdminUserID:  actor.AdminUserID,
		ActionName:   action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Description:  description,
		IPAddress:    actor.IP,
		CreatedAt:    time.Now().UTC(),
	}
	if actor.TraceID != "" {
		e.TraceID = &actor.TraceID
	}
	if oldValue != nil {
		e.OldValue, _ = json.Marshal(oldValue)
	}
	if newValue != nil {
		e.NewValue, _ = json.Marshal(newValue)
	}
	return e
}

func (s *Service) mirrorEntry(ctx context.Context, e *model.AuditLogEntry) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Insert(ctx, e); err != nil {
		logger.Log.Warn("audit mirror write failed",
			zap.Int64("entry_id", e.ID),
			zap.Error(err))
	}
}
