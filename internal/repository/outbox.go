package repository

import (
	"context"
	"time"

	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/jmoiron/sqlx"
)

// OutboxStats is the operator view of outbox health.
type OutboxStats struct {
	Pending   int64 `db:"pending" json:"pending"`
	Published int64 `db:"published" json:"published"`
	Failed    int64 `db:"failed" json:"failed"`
}

// OutboxRepository defines persistence methods for the outbox_events table.
type OutboxRepository interface {
	// Insert writes a single outbox event. It must be called with the
	// transaction of the business mutation it announces; tx=nil opens an
	// internal transaction and exists for tooling only.
	Insert(ctx context.Context, tx *sqlx.Tx, ev *model.OutboxEvent) error

	// ClaimDue selects a bounded batch of due PENDING rows with
	// FOR UPDATE SKIP LOCKED, so concurrent publisher instances never
	// claim the same row. Must run inside tx.
	ClaimDue(ctx context.Context, tx *sqlx.Tx, limit int, now time.Time) ([]model.OutboxEvent, error)

	MarkPublished(ctx context.Context, tx *sqlx.Tx, id int64, now time.Time) error

	// RecordFailure bumps retry accounting; terminal=true flips the row
	// to FAILED, otherwise it stays PENDING and becomes due at nextRetryAt.
	RecordFailure(ctx context.Context, tx *sqlx.Tx, id int64, errMsg string, nextRetryAt time.Time, terminal bool, now time.Time) error

	// RetryFailed requeues terminal FAILED rows for manual replay.
	RetryFailed(ctx context.Context) (int64, error)

	// ArchivePublishedBefore sweeps PUBLISHED rows past the retention window.
	ArchivePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Stats(ctx context.Context) (OutboxStats, error)
}

// OutboxRepositoryImpl is a sqlx-backed implementation.
type OutboxRepositoryImpl struct {
	db *sqlx.DB
}

// NewOutboxRepository constructs an OutboxRepositoryImpl.
func NewOutboxRepository(db *sqlx.DB) *OutboxRepositoryImpl {
	return &OutboxRepositoryImpl{db: db}
}

var _ OutboxRepository = (*OutboxRepositoryImpl)(nil)

// withTx runs fn in the provided tx, or starts a new transaction when tx is nil.
func (r *OutboxRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}

	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}

	return t.Commit()
}

func (r *OutboxRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, ev *model.OutboxEvent) error {
	maxRetries := ev.MaxRetries
	if maxRetries <= 0 {
		maxRetries = model.DefaultMaxRetries
	}
	const q = `
		INSERT INTO outbox_events
		    (event_id, aggregate_type, aggregate_id, event_type, payload, topic, partition_key, status, retry_count, max_retries, created_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, 'PENDING', 0, ?, NOW())
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			ev.EventID, ev.AggregateType, ev.AggregateID, ev.EventType,
			ev.Payload, ev.Topic, ev.PartitionKey, maxRetries,
		)
		return err
	})
}

func (r *OutboxRepositoryImpl) ClaimDue(ctx context.Context, tx *sqlx.Tx, limit int, now time.Time) ([]model.OutboxEvent, error) {
	const q = `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload, topic, partition_key,
		       status, retry_count, max_retries, last_retry_at, next_retry_at, last_error, created_at, published_at
		  FROM outbox_events
		 WHERE status = 'PENDING'
		   AND (next_retry_at IS NULL OR next_retry_at <= ?)
		 ORDER BY created_at
		 LIMIT ?
		   FOR UPDATE SKIP LOCKED
	`
	var rows []model.OutboxEvent
	if err := tx.SelectContext(ctx, &rows, q, now, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *OutboxRepositoryImpl) MarkPublished(ctx context.Context, tx *sqlx.Tx, id int64, now time.Time) error {
	const q = `
		UPDATE outbox_events
		   SET status = 'PUBLISHED', published_at = ?
		 WHERE id = ? AND status = 'PENDING'
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, now, id)
		return err
	})
}

func (r *OutboxRepositoryImpl) RecordFailure(ctx context.Context, tx *sqlx.Tx, id int64, errMsg string, nextRetryAt time.Time, terminal bool, now time.Time) error {
	status := model.OutboxPending
	if terminal {
		status = model.OutboxFailed
	}
	const q = `
		UPDATE outbox_events
		   SET retry_count = retry_count + 1,
		       last_retry_at = ?,
		       next_retry_at = ?,
		       last_error = ?,
		       status = ?
		 WHERE id = ?
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, now, nextRetryAt, errMsg, status.String(), id)
		return err
	})
}

func (r *OutboxRepositoryImpl) RetryFailed(ctx context.Context) (int64, error) {
	const q = `
		UPDATE outbox_events
		   SET status = 'PENDING', retry_count = 0, next_retry_at = NULL, last_error = NULL
		 WHERE status = 'FAILED'
	`
	res, err := r.db.ExecContext(ctx, q)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *OutboxRepositoryImpl) ArchivePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `
		UPDATE outbox_events
		   SET status = 'ARCHIVED'
		 WHERE status = 'PUBLISHED' AND published_at < ?
	`
	res, err := r.db.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *OutboxRepositoryImpl) Stats(ctx context.Context) (OutboxStats, error) {
	const q = `
		SELECT
		    COALESCE(SUM(status = 'PENDING'), 0)   AS pending,
		    COALESCE(SUM(status = 'PUBLISHED'), 0) AS published,
		    COALESCE(SUM(status = 'FAILED'), 0)    AS failed
		  FROM outbox_events
	`
	var s OutboxStats
	if err := r.db.GetContext(ctx, &s, q); err != nil {
		return OutboxStats{}, err
	}
	return s, nil
}
