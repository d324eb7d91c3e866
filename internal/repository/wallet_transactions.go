package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/jmoiron/sqlx"
)

type WalletTxListFilter struct {
	Status model.WalletTxStatus
	UserID string
	Limit  int
	Offset int
}

// WalletTransactionsRepository persists the managed_wallet_transactions
// read model (system of record: wallet service).
type WalletTransactionsRepository interface {
	GetByID(ctx context.Context, id int64) (*model.ManagedWalletTransaction, error)
	GetByExternalID(ctx context.Context, tx *sqlx.Tx, externalID string) (*model.ManagedWalletTransaction, error)
	List(ctx context.Context, f WalletTxListFilter) ([]model.ManagedWalletTransaction, error)

	Insert(ctx context.Context, tx *sqlx.Tx, t *model.ManagedWalletTransaction) error
	UpdateFromEvent(ctx context.Context, tx *sqlx.Tx, id int64, status model.WalletTxStatus, confirmedAt *time.Time, syncedAt time.Time) error

	// UpdateStatusLocal is the stub-path write: when the wallet service
	// integration is disabled there is no owner to reconcile against,
	// so the dispatcher updates the cache directly.
	UpdateStatusLocal(ctx context.Context, id int64, status model.WalletTxStatus) error
}

type walletTransactionsRepo struct {
	db *sqlx.DB
}

func NewWalletTransactionsRepository(db *sqlx.DB) WalletTransactionsRepository {
	return &walletTransactionsRepo{db: db}
}

const walletTxColumns = `
	id, external_transaction_id, external_wallet_id, user_id, transaction_type,
	amount, status, bank_info, confirmed_at, created_at, synced_at
`

func (r *walletTransactionsRepo) ext(tx *sqlx.Tx) sqlx.ExtContext {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *walletTransactionsRepo) GetByID(ctx context.Context, id int64) (*model.ManagedWalletTransaction, error) {
	var t model.ManagedWalletTransaction
	err := sqlx.GetContext(ctx, r.db, &t,
		`SELECT `+walletTxColumns+` FROM managed_wallet_transactions WHERE id = ? LIMIT 1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *walletTransactionsRepo) GetByExternalID(ctx context.Context, tx *sqlx.Tx, externalID string) (*model.ManagedWalletTransaction, error) {
	var t model.ManagedWalletTransaction
	err := sqlx.GetContext(ctx, r.ext(tx), &t,
		`SELECT `+walletTxColumns+` FROM managed_wallet_transactions WHERE external_transaction_id = ? LIMIT 1`, externalID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *walletTransactionsRepo) List(ctx context.Context, f WalletTxListFilter) ([]model.ManagedWalletTransaction, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := `SELECT ` + walletTxColumns + ` FROM managed_wallet_transactions WHERE 1 = 1`
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

	var rows []model.ManagedWalletTransaction
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *walletTransactionsRepo) Insert(ctx context.Context, tx *sqlx.Tx, t *model.ManagedWalletTransaction) error {
	const q = `
		INSERT INTO managed_wallet_transactions
		    (external_transaction_id, external_wallet_id, user_id, transaction_type, amount, status, bank_info, confirmed_at, created_at, synced_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, ?, NOW(), ?)
	`
	res, err := tx.ExecContext(ctx, q,
		t.ExternalTransactionID, t.ExternalWalletID, t.UserID,
		t.TransactionType.String(), t.Amount, t.Status.String(),
		t.BankInfo, t.ConfirmedAt, t.SyncedAt,
	)
	if err != nil {
		return err
	}
	t.ID, _ = res.LastInsertId()
	return nil
}

func (r *walletTransactionsRepo) UpdateFromEvent(ctx context.Context, tx *sqlx.Tx, id int64, status model.WalletTxStatus, confirmedAt *time.Time, syncedAt time.Time) error {
	q := `UPDATE managed_wallet_transactions SET status = ?, synced_at = ?`
	args := []any{status.String(), syncedAt}

	if confirmedAt != nil {
		q += ", confirmed_at = ?"
		args = append(args, *confirmedAt)
	}

	q += " WHERE id = ?"
	args = append(args, id)

	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

func (r *walletTransactionsRepo) UpdateStatusLocal(ctx context.Context, id int64, status model.WalletTxStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE managed_wallet_transactions SET status = ? WHERE id = ?`, status.String(), id)
	return err
}
