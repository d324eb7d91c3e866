package consumer

import (
	"context"

	"github.com/ccm-platform/carbon-admin/internal/repository"
	"github.com/jmoiron/sqlx"
)

// applyOnce runs the dedup marker insert and the read-model mutation in
// one transaction, so a crash between them cannot strand a marker
// without its side effect. A pre-existing marker short-circuits to
// OutcomeDuplicate without calling fn.
func applyOnce(ctx context.Context, db *sqlx.DB, processed repository.ProcessedEventsRepository, consumer, key string, fn func(tx *sqlx.Tx) error) (Outcome, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return OutcomeSkipped, err
	}
	defer func() { _ = tx.Rollback() }()

	fresh, err := processed.MarkProcessed(ctx, tx, consumer, key)
	if err != nil {
		return OutcomeSkipped, err
	}
	if !fresh {
		return OutcomeDuplicate, tx.Commit()
	}

	if err := fn(tx); err != nil {
		return OutcomeSkipped, err
	}
	return OutcomeApplied, tx.Commit()
}
