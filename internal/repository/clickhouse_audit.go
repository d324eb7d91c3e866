package repository

import (
	"context"

	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/jmoiron/sqlx"
)

// CHAuditRepository mirrors audit entries into ClickHouse for operator
// reporting. Writes are best-effort; MySQL stays the source of truth.
type CHAuditRepository interface {
	Insert(ctx context.Context, e *model.AuditLogEntry) error
	ListByAction(ctx context.Context, actionName string, limit, offset int) ([]model.AuditLogEntry, error)
}

type chAuditRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHAuditRepository(ch *sqlx.DB) CHAuditRepository {
	return &chAuditRepository{ch: ch}
}

func (r *chAuditRepository) Insert(ctx context.Context, e *model.AuditLogEntry) error {
	const q = `
		INSERT INTO ccmadm.audit_log
		    (id, admin_user_id, action_name, resource_type, resource_id, description, created_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?)
	`
	var adminID int64
	if e.AdminUserID != nil {
		adminID = *e.AdminUserID
	}
	_, err := r.ch.ExecContext(ctx, q,
		e.ID, adminID, e.ActionName, e.ResourceType, e.ResourceID, e.Description, e.CreatedAt)
	return err
}

func (r *chAuditRepository) ListByAction(ctx context.Context, actionName string, limit, offset int) ([]model.AuditLogEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, admin_user_id, action_name, resource_type, resource_id, description, created_at
		FROM ccmadm.audit_log
		WHERE 1 = 1
	`
	args := []any{}

	if actionName != "" {
		q += " AND action_name = ?"
		args = append(args, actionName)
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.AuditLogEntry
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
