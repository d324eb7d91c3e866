package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type TransactionListFilter struct {
	Status model.TransactionStatus
	UserID string
	Limit  int
	Offset int
}

// TransactionsRepository persists the managed_transactions read model
// (system of record: payment service, keyed by payment code).
type TransactionsRepository interface {
	GetByExternalID(ctx context.Context, tx *sqlx.Tx, code string) (*model.ManagedTransaction, error)
	List(ctx context.Context, f TransactionListFilter) ([]model.ManagedTransaction, error)

	Insert(ctx context.Context, tx *sqlx.Tx, t *model.ManagedTransaction) error
	UpdateFromEvent(ctx context.Context, tx *sqlx.Tx, id int64, status model.TransactionStatus, amount *decimal.Decimal, failureReason *string, completedAt *time.Time, syncedAt time.Time) error

	// SetDisputeReason writes the admin overlay only.
	SetDisputeReason(ctx context.Context, id int64, reason *string) error
}

type transactionsRepo struct {
	db *sqlx.DB
}

func NewTransactionsRepository(db *sqlx.DB) TransactionsRepository {
	return &transactionsRepo{db: db}
}

const transactionColumns = `
	id, external_transaction_id, user_id, amount, status, failure_reason,
	dispute_reason, completed_at, created_at, synced_at
`

func (r *transactionsRepo) ext(tx *sqlx.Tx) sqlx.ExtContext {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *transactionsRepo) GetByExternalID(ctx context.Context, tx *sqlx.Tx, code string) (*model.ManagedTransaction, error) {
	var t model.ManagedTransaction
	err := sqlx.GetContext(ctx, r.ext(tx), &t,
		`SELECT `+transactionColumns+` FROM managed_transactions WHERE external_transaction_id = ? LIMIT 1`, code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transactionsRepo) List(ctx context.Context, f TransactionListFilter) ([]model.ManagedTransaction, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := `SELECT ` + transactionColumns + ` FROM managed_transactions WHERE 1 = 1`
	args := []any{}

	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status.String())
	}
	if f.UserID != "" {
		q += " AND user_id = ?"
		args = append(args, f.UserID)
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	var rows []model.ManagedTransaction
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *transactionsRepo) Insert(ctx context.Context, tx *sqlx.Tx, t *model.ManagedTransaction) error {
	const q = `
		INSERT INTO managed_transactions
		    (external_transaction_id, user_id, amount, status, failure_reason, completed_at, created_at, synced_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, NOW(), ?)
	`
	res, err := tx.ExecContext(ctx, q,
		t.ExternalTransactionID, t.UserID, t.Amount, t.Status.String(),
		t.FailureReason, t.CompletedAt, t.SyncedAt,
	)
	if err != nil {
		return err
	}
	t.ID, _ = res.LastInsertId()
	return nil
}

// UpdateFromEvent touches mirrored columns only; dispute_reason is an
// admin overlay and stays out of this statement by design of the schema
// split, not by conditional logic.
func (r *transactionsRepo) UpdateFromEvent(ctx context.Context, tx *sqlx.Tx, id int64, status model.TransactionStatus, amount *decimal.Decimal, failureReason *string, completedAt *time.Time, syncedAt time.Time) error {
	q := `UPDATE managed_transactions SET status = ?, synced_at = ?`
	args := []any{status.String(), syncedAt}

	if amount != nil {
		q += ", amount = ?"
		args = append(args, *amount)
	}
	if failureReason != nil {
		q += ", failure_reason = ?"
		args = append(args, *failureReason)
	}
	if completedAt != nil {
		q += ", completed_at = ?"
		args = append(args, *completedAt)
	}

	q += " WHERE id = ?"
	args = append(args, id)

	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

func (r *transactionsRepo) SetDisputeReason(ctx context.Context, id int64, reason *string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE managed_transactions SET dispute_reason = ? WHERE id = ?`, reason, id)
	return err
}
