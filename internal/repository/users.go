package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/jmoiron/sqlx"
)

// UserListFilter narrows List results; zero values mean "no filter".
type UserListFilter struct {
	Status    model.ManagedUserStatus
	KycStatus model.KycStatus
	Email     string
	Limit     int
	Offset    int
}

// UsersRepository persists the managed_users read model. Event-driven
// writes go through UpsertFromEvent/UpdateKycFromEvent and never touch
// the overlay columns; admin writes own the overlay.
type UsersRepository interface {
	GetByID(ctx context.Context, id int64) (*model.ManagedUser, error)
	GetByEmail(ctx context.Context, tx *sqlx.Tx, email string) (*model.ManagedUser, error)
	List(ctx context.Context, f UserListFilter) ([]model.ManagedUser, error)

	Insert(ctx context.Context, tx *sqlx.Tx, u *model.ManagedUser) error
	UpdateSyncedFields(ctx context.Context, tx *sqlx.Tx, id int64, externalUserID *string, fullName, phone *string, userType *model.UserType, syncedAt time.Time) error
	UpdateKycFromEvent(ctx context.Context, tx *sqlx.Tx, id int64, status model.KycStatus, syncedAt time.Time) error

	// Admin-side writes (overlay and local profile edits).
	UpdateStatus(ctx context.Context, tx *sqlx.Tx, id int64, status model.ManagedUserStatus, suspensionReason *string) error
	UpdateProfile(ctx context.Context, tx *sqlx.Tx, id int64, fullName, phone *string) error
	UpdateKyc(ctx context.Context, tx *sqlx.Tx, id int64, status model.KycStatus) error
}

type usersRepo struct {
	db *sqlx.DB
}

func NewUsersRepository(db *sqlx.DB) UsersRepository {
	return &usersRepo{db: db}
}

const userColumns = `
	id, external_user_id, email, full_name, phone, user_type, status,
	kyc_status, suspension_reason, created_at, synced_at
`

func (r *usersRepo) ext(tx *sqlx.Tx) sqlx.ExtContext {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *usersRepo) GetByID(ctx context.Context, id int64) (*model.ManagedUser, error) {
	var u model.ManagedUser
	err := sqlx.GetContext(ctx, r.db, &u,
		`SELECT `+userColumns+` FROM managed_users WHERE id = ? LIMIT 1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *usersRepo) GetByEmail(ctx context.Context, tx *sqlx.Tx, email string) (*model.ManagedUser, error) {
	var u model.ManagedUser
	err := sqlx.GetContext(ctx, r.ext(tx), &u,
		`SELECT `+userColumns+` FROM managed_users WHERE email = ? LIMIT 1`, email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *usersRepo) List(ctx context.Context, f UserListFilter) ([]model.ManagedUser, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := `SELECT ` + userColumns + ` FROM managed_users WHERE 1 = 1`
	args := []any{}

	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status.String())
	}
	if f.KycStatus != "" {
		q += " AND kyc_status = ?"
		args = append(args, f.KycStatus.String())
	}
	if f.Email != "" {
		q += " AND email = ?"
		args = append(args, f.Email)
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	var rows []model.ManagedUser
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *usersRepo) Insert(ctx context.Context, tx *sqlx.Tx, u *model.ManagedUser) error {
	const q = `
		INSERT INTO managed_users
		    (external_user_id, email, full_name, phone, user_type, status, kyc_status, created_at, synced_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, NOW(), ?)
	`
	res, err := tx.ExecContext(ctx, q,
		u.ExternalUserID, u.Email, u.FullName, u.Phone,
		u.UserType.String(), u.Status.String(), u.KycStatus.String(), u.SyncedAt,
	)
	if err != nil {
		return err
	}
	u.ID, _ = res.LastInsertId()
	return nil
}

// UpdateSyncedFields applies only the mirrored fields an event carries;
// nil pointers leave the column untouched.
func (r *usersRepo) UpdateSyncedFields(ctx context.Context, tx *sqlx.Tx, id int64, externalUserID *string, fullName, phone *string, userType *model.UserType, syncedAt time.Time) error {
	q := `UPDATE managed_users SET synced_at = ?`
	args := []any{syncedAt}

	if externalUserID != nil {
		q += ", external_user_id = ?"
		args = append(args, *externalUserID)
	}
	if fullName != nil {
		q += ", full_name = ?"
		args = append(args, *fullName)
	}
	if phone != nil {
		q += ", phone = ?"
		args = append(args, *phone)
	}
	if userType != nil {
		q += ", user_type = ?"
		args = append(args, userType.String())
	}

	q += " WHERE id = ?"
	args = append(args, id)

	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

func (r *usersRepo) UpdateKycFromEvent(ctx context.Context, tx *sqlx.Tx, id int64, status model.KycStatus, syncedAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE managed_users SET kyc_status = ?, synced_at = ? WHERE id = ?
	`, status.String(), syncedAt, id)
	return err
}

func (r *usersRepo) UpdateStatus(ctx context.Context, tx *sqlx.Tx, id int64, status model.ManagedUserStatus, suspensionReason *string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE managed_users SET status = ?, suspension_reason = ? WHERE id = ?
	`, status.String(), suspensionReason, id)
	return err
}

func (r *usersRepo) UpdateProfile(ctx context.Context, tx *sqlx.Tx, id int64, fullName, phone *string) error {
	q := `UPDATE managed_users SET id = id`
	args := []any{}

	if fullName != nil {
		q += ", full_name = ?"
		args = append(args, *fullName)
	}
	if phone != nil {
		q += ", phone = ?"
		args = append(args, *phone)
	}

	q += " WHERE id = ?"
	args = append(args, id)

	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

func (r *usersRepo) UpdateKyc(ctx context.Context, tx *sqlx.Tx, id int64, status model.KycStatus) error {
	_, err := tx.ExecContext(ctx, `UPDATE managed_users SET kyc_status = ? WHERE id = ?`, status.String(), id)
	return err
}
