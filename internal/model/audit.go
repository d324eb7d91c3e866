package model

import "time"

// AuditLogEntry is an append-only record of every externally
// consequential admin action, including failed attempts. A command's
// *_INITIATED entry always exists before its *_SUCCEEDED/*_FAILED one.
type AuditLogEntry struct {
	ID           int64     `db:"id"`
	AdminUserID  *int64    `db:"admin_user_id"` // nil = system actor
	ActionName   string    `db:"action_name"`
	ResourceType string    `db:"resource_type"`
	ResourceID   string    `db:"resource_id"`
	Description  string    `db:"description"`
	OldValue     []byte    `db:"old_value"` // free-form JSON snapshot
	NewValue     []byte    `db:"new_value"`
	IPAddress    *string   `db:"ip_address"`
	TraceID      *string   `db:"trace_id"`
	CreatedAt    time.Time `db:"created_at"`
}

// Audit action suffixes for the command dispatch path.
const (
	AuditInitiated = "_INITIATED"
	AuditSucceeded = "_SUCCEEDED"
	AuditFailed    = "_FAILED"
)
