package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type ListingListFilter struct {
	Status  model.ListingStatus
	OwnerID string
	Limit   int
	Offset  int
}

// ListingsRepository persists the managed_listings read model
// (system of record: listing service). Flag and suspension columns are
// admin overlays.
type ListingsRepository interface {
	GetByID(ctx context.Context, id int64) (*model.ManagedListing, error)
	GetByExternalID(ctx context.Context, tx *sqlx.Tx, externalID string) (*model.ManagedListing, error)
	List(ctx context.Context, f ListingListFilter) ([]model.ManagedListing, error)

	Insert(ctx context.Context, tx *sqlx.Tx, l *model.ManagedListing) error
	UpdateFromEvent(ctx context.Context, tx *sqlx.Tx, id int64, status *model.ListingStatus, creditsAmount, pricePerCredit *decimal.Decimal, syncedAt time.Time) error

	SetFlag(ctx context.Context, tx *sqlx.Tx, id int64, flagType, flagReason *string) error
	SetSuspension(ctx context.Context, tx *sqlx.Tx, id int64, status model.ListingStatus, reason *string) error
}

type listingsRepo struct {
	db *sqlx.DB
}

func NewListingsRepository(db *sqlx.DB) ListingsRepository {
	return &listingsRepo{db: db}
}

const listingColumns = `
	id, external_listing_id, owner_id, credits_amount, price_per_credit,
	listing_type, status, suspension_reason, flag_type, flag_reason,
	created_at, synced_at
`

func (r *listingsRepo) ext(tx *sqlx.Tx) sqlx.ExtContext {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *listingsRepo) GetByID(ctx context.Context, id int64) (*model.ManagedListing, error) {
	var l model.ManagedListing
	err := sqlx.GetContext(ctx, r.db, &l,
		`SELECT `+listingColumns+` FROM managed_listings WHERE id = ? LIMIT 1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *listingsRepo) GetByExternalID(ctx context.Context, tx *sqlx.Tx, externalID string) (*model.ManagedListing, error) {
	var l model.ManagedListing
	err := sqlx.GetContext(ctx, r.ext(tx), &l,
		`SELECT `+listingColumns+` FROM managed_listings WHERE external_listing_id = ? LIMIT 1`, externalID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *listingsRepo) List(ctx context.Context, f ListingListFilter) ([]model.ManagedListing, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := `SELECT ` + listingColumns + ` FROM managed_listings WHERE 1 = 1`
	args := []any{}

	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status.String())
	}
	if f.OwnerID != "" {
		q += " AND owner_id = ?"
		args = append(args, f.OwnerID)
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	var rows []model.ManagedListing
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *listingsRepo) Insert(ctx context.Context, tx *sqlx.Tx, l *model.ManagedListing) error {
	const q = `
		INSERT INTO managed_listings
		    (external_listing_id, owner_id, credits_amount, price_per_credit, listing_type, status, created_at, synced_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, NOW(), ?)
	`
	res, err := tx.ExecContext(ctx, q,
		l.ExternalListingID, l.OwnerID, l.CreditsAmount, l.PricePerCredit,
		l.ListingType, l.Status.String(), l.SyncedAt,
	)
	if err != nil {
		return err
	}
	l.ID, _ = res.LastInsertId()
	return nil
}

func (r *listingsRepo) UpdateFromEvent(ctx context.Context, tx *sqlx.Tx, id int64, status *model.ListingStatus, creditsAmount, pricePerCredit *decimal.Decimal, syncedAt time.Time) error {
	q := `UPDATE managed_listings SET synced_at = ?`
	args := []any{syncedAt}

	if status != nil {
		q += ", status = ?"
		args = append(args, status.String())
	}
	if creditsAmount != nil {
		q += ", credits_amount = ?"
		args = append(args, *creditsAmount)
	}
	if pricePerCredit != nil {
		q += ", price_per_credit = ?"
		args = append(args, *pricePerCredit)
	}

	q += " WHERE id = ?"
	args = append(args, id)

	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

func (r *listingsRepo) SetFlag(ctx context.Context, tx *sqlx.Tx, id int64, flagType, flagReason *string) error {
	_, err := r.ext(tx).ExecContext(ctx,
		`UPDATE managed_listings SET flag_type = ?, flag_reason = ? WHERE id = ?`,
		flagType, flagReason, id)
	return err
}

func (r *listingsRepo) SetSuspension(ctx context.Context, tx *sqlx.Tx, id int64, status model.ListingStatus, reason *string) error {
	_, err := r.ext(tx).ExecContext(ctx,
		`UPDATE managed_listings SET status = ?, suspension_reason = ? WHERE id = ?`,
		status.String(), reason, id)
	return err
}
