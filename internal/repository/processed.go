package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// ProcessedEventsRepository is the durable consumer-side dedup set.
// Membership insert is conditional and must share the transaction of
// the read-model upsert it guards, so duplicate delivery can never
// double-apply a side effect.
type ProcessedEventsRepository interface {
	// MarkProcessed inserts the (consumer, key) pair. Returns false when
	// the key was already present, i.e. the event was applied before.
	MarkProcessed(ctx context.Context, tx *sqlx.Tx, consumer, key string) (bool, error)

	// DeleteBefore trims markers past the retention window.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type processedEventsRepo struct {
	db *sqlx.DB
}

func NewProcessedEventsRepository(db *sqlx.DB) ProcessedEventsRepository {
	return &processedEventsRepo{db: db}
}

func (r *processedEventsRepo) MarkProcessed(ctx context.Context, tx *sqlx.Tx, consumer, key string) (bool, error) {
	// Duplicate key leaves the row untouched, so RowsAffected is 0 for
	// an already-processed event and 1 for a first delivery.
	res, err := tx.ExecContext(ctx, `
		INSERT INTO processed_events (consumer, event_key, processed_at)
		VALUES (?, ?, NOW())
		ON DUPLICATE KEY UPDATE id = id
	`, consumer, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *processedEventsRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM processed_events WHERE processed_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
