package consumer

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ccm-platform/carbon-admin/internal/logger"
	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/ccm-platform/carbon-admin/internal/repository"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const WalletConsumerName = "wallet-sync"

// WalletHandler maintains managed_wallet_transactions from the wallet
// service's event stream, keyed by the wallet service's transaction ID.
type WalletHandler struct {
	DB        *sqlx.DB
	Processed repository.ProcessedEventsRepository
	WalletTxs repository.WalletTransactionsRepository

	now func() time.Time
}

func NewWalletHandler(db *sqlx.DB, processed repository.ProcessedEventsRepository, walletTxs repository.WalletTransactionsRepository) *WalletHandler {
	return &WalletHandler{DB: db, Processed: processed, WalletTxs: walletTxs, now: time.Now}
}

func (h *WalletHandler) Handle(ctx context.Context, env model.Envelope) (Outcome, error) {
	switch env.Type {
	case model.EventWalletTxCreated, model.EventWalletTxConfirmed, model.EventWalletTxFailed:
	default:
		return OutcomeSkipped, nil
	}

	var p model.WalletTransactionPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.TransactionID == "" || p.UserID == "" {
		logger.Log.Warn("wallet event payload unusable",
			zap.String("event_id", env.ID),
			zap.String("event_type", env.Type),
			zap.Error(err))
		return OutcomeSkipped, nil
	}

	occurred := env.OccurredAt(h.now().UTC())
	status := h.statusFor(env.Type, p.Status)

	// Each lifecycle transition happens once per transaction, so the
	// dedup key is semantic: a re-emitted event with a fresh envelope ID
	// is still the same transition.
	key := strings.TrimPrefix(env.Type, "wallet.transaction.") + ":" + p.TransactionID

	return applyOnce(ctx, h.DB, h.Processed, WalletConsumerName, key, func(tx *sqlx.Tx) error {
		existing, err := h.WalletTxs.GetByExternalID(ctx, tx, p.TransactionID)
		if err != nil {
			return err
		}
		if existing == nil {
			txType := model.WalletTxType(p.Type)
			if !txType.Valid() {
				txType = model.WalletTxDeposit
			}
			t := model.ManagedWalletTransaction{
				ExternalTransactionID: p.TransactionID,
				UserID:                p.UserID,
				TransactionType:       txType,
				Amount:                p.Amount,
				Status:                status,
				SyncedAt:              occurred,
			}
			if p.WalletID != "" {
				t.ExternalWalletID = &p.WalletID
			}
			if status == model.WalletTxConfirmed {
				t.ConfirmedAt = &occurred
			}
			return h.WalletTxs.Insert(ctx, tx, &t)
		}
		if existing.SyncedAt.After(occurred) {
			return nil
		}
		var confirmedAt *time.Time
		if status == model.WalletTxConfirmed && existing.ConfirmedAt == nil {
			confirmedAt = &occurred
		}
		return h.WalletTxs.UpdateFromEvent(ctx, tx, existing.ID, status, confirmedAt, occurred)
	})
}

func (h *WalletHandler) statusFor(eventType, payloadStatus string) model.WalletTxStatus {
	switch eventType {
	case model.EventWalletTxConfirmed:
		return model.WalletTxConfirmed
	case model.EventWalletTxFailed:
		return model.WalletTxFailed
	}
	if s := model.WalletTxStatus(payloadStatus); s.Valid() {
		return s
	}
	return model.WalletTxPending
}
