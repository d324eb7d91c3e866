package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ccm-platform/carbon-admin/internal/logger"
	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/ccm-platform/carbon-admin/internal/repository"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const PaymentConsumerName = "payment-sync"

// PaymentHandler maintains managed_transactions from the payment
// service's event stream. Dedup keys are semantic (state transition per
// payment code), so a re-emitted event with a fresh envelope ID still
// counts as a duplicate.
type PaymentHandler struct {
	DB           *sqlx.DB
	Processed    repository.ProcessedEventsRepository
	Transactions repository.TransactionsRepository

	now func() time.Time
}

func NewPaymentHandler(db *sqlx.DB, processed repository.ProcessedEventsRepository, txs repository.TransactionsRepository) *PaymentHandler {
	return &PaymentHandler{DB: db, Processed: processed, Transactions: txs, now: time.Now}
}

func (h *PaymentHandler) Handle(ctx context.Context, env model.Envelope) (Outcome, error) {
	switch env.Type {
	case model.EventPaymentCompleted:
		return h.handleCompleted(ctx, env)
	case model.EventPaymentFailed:
		return h.handleFailed(ctx, env)
	default:
		return OutcomeSkipped, nil
	}
}

func (h *PaymentHandler) handleCompleted(ctx context.Context, env model.Envelope) (Outcome, error) {
	var p model.PaymentCompletedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.PaymentCode == "" {
		logger.Log.Warn("payment.completed payload unusable",
			zap.String("event_id", env.ID), zap.Error(err))
		return OutcomeSkipped, nil
	}

	occurred := env.OccurredAt(h.now().UTC())
	completedAt := occurred
	if p.Timestamp != nil {
		completedAt = *p.Timestamp
	}

	return applyOnce(ctx, h.DB, h.Processed, PaymentConsumerName, "completed:"+p.PaymentCode, func(tx *sqlx.Tx) error {
		existing, err := h.Transactions.GetByExternalID(ctx, tx, p.PaymentCode)
		if err != nil {
			return err
		}
		if existing == nil {
			t := model.ManagedTransaction{
				ExternalTransactionID: p.PaymentCode,
				Amount:                p.Amount,
				Status:                model.TxCompleted,
				CompletedAt:           &completedAt,
				SyncedAt:              occurred,
			}
			if p.UserID != "" {
				t.UserID = &p.UserID
			}
			return h.Transactions.Insert(ctx, tx, &t)
		}
		if existing.SyncedAt.After(occurred) {
			return nil // newer state already synced
		}
		return h.Transactions.UpdateFromEvent(ctx, tx, existing.ID,
			model.TxCompleted, &p.Amount, nil, &completedAt, occurred)
	})
}

func (h *PaymentHandler) handleFailed(ctx context.Context, env model.Envelope) (Outcome, error) {
	var p model.PaymentFailedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.PaymentCode == "" {
		logger.Log.Warn("payment.failed payload unusable",
			zap.String("event_id", env.ID), zap.Error(err))
		return OutcomeSkipped, nil
	}

	occurred := env.OccurredAt(h.now().UTC())

	var reason *string
	if p.Reason != "" {
		reason = &p.Reason
	}

	return applyOnce(ctx, h.DB, h.Processed, PaymentConsumerName, "failed:"+p.PaymentCode, func(tx *sqlx.Tx) error {
		existing, err := h.Transactions.GetByExternalID(ctx, tx, p.PaymentCode)
		if err != nil {
			return err
		}
		if existing == nil {
			t := model.ManagedTransaction{
				ExternalTransactionID: p.PaymentCode,
				Status:                model.TxCancelled,
				FailureReason:         reason,
				SyncedAt:              occurred,
			}
			if p.UserID != "" {
				t.UserID = &p.UserID
			}
			return h.Transactions.Insert(ctx, tx, &t)
		}
		if existing.SyncedAt.After(occurred) {
			return nil
		}
		return h.Transactions.UpdateFromEvent(ctx, tx, existing.ID,
			model.TxCancelled, nil, reason, nil, occurred)
	})
}
