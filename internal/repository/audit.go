package repository

import (
	"context"
	"time"

	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/jmoiron/sqlx"
)

type AuditListFilter struct {
	AdminUserID  *int64
	ActionName   string
	ResourceType string
	ResourceID   string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// AuditLogRepository is the append-only MySQL audit trail. Entries are
// never updated or deleted.
type AuditLogRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, e *model.AuditLogEntry) error
	List(ctx context.Context, f AuditListFilter) ([]model.AuditLogEntry, error)
}

type auditLogRepo struct {
	db *sqlx.DB
}

func NewAuditLogRepository(db *sqlx.DB) AuditLogRepository {
	return &auditLogRepo{db: db}
}

func (r *auditLogRepo) ext(tx *sqlx.Tx) sqlx.ExtContext {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *auditLogRepo) Insert(ctx context.Context, tx *sqlx.Tx, e *model.AuditLogEntry) error {
	const q = `
		INSERT INTO audit_log
		    (admin_user_id, action_name, resource_type, resource_id, description,
		     old_value, new_value, ip_address, trace_id, created_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := r.ext(tx).ExecContext(ctx, q,
		e.AdminUserID, e.ActionName, e.ResourceType, e.ResourceID, e.Description,
		e.OldValue, e.NewValue, e.IPAddress, e.TraceID, e.CreatedAt,
	)
	if err != nil {
		return err
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

func (r *auditLogRepo) List(ctx context.Context, f AuditListFilter) ([]model.AuditLogEntry, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := `
		SELECT id, admin_user_id, action_name, resource_type, resource_id, description,
		       old_value, new_value, ip_address, trace_id, created_at
		  FROM audit_log
		 WHERE 1 = 1
	`
	args := []any{}

	if f.AdminUserID != nil {
		q += " AND admin_user_id = ?"
		args = append(args, *f.AdminUserID)
	}
	if f.ActionName != "" {
		q += " AND action_name = ?"
		args = append(args, f.ActionName)
	}
	if f.ResourceType != "" {
		q += " AND resource_type = ?"
		args = append(args, f.ResourceType)
	}
	if f.ResourceID != "" {
		q += " AND resource_id = ?"
		args = append(args, f.ResourceID)
	}
	if f.From != nil {
		q += " AND created_at >= ?"
		args = append(args, *f.From)
	}
	if f.To != nil {
		q += " AND created_at < ?"
		args = append(args, *f.To)
	}

	q += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	var rows []model.AuditLogEntry
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
