package admin

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ccm-platform/carbon-admin/internal/audit"
	"github.com/ccm-platform/carbon-admin/internal/command"
	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/ccm-platform/carbon-admin/internal/repository"
	"github.com/shopspring/decimal"
)

// Wallet state is owned by the wallet service, so mutations go out as
// commands. On the live path the cache row stays untouched until the
// wallet service's own event confirms the change; on the stub path the
// dispatcher's callback writes the cache directly.

func (s *Service) GetWalletTransaction(ctx context.Context, id int64) (*model.ManagedWalletTransaction, error) {
	t, err := s.walletTxs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotFound
	}
	return t, nil
}

func (s *Service) ListWalletTransactions(ctx context.Context, f repository.WalletTxListFilter) ([]model.ManagedWalletTransaction, error) {
	return s.walletTxs.List(ctx, f)
}

func (s *Service) ReverseWalletTransaction(ctx context.Context, actor audit.Actor, id int64, reason string) error {
	t, err := s.walletTxs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return ErrNotFound
	}
	if t.Status != model.WalletTxConfirmed {
		return fmt.Errorf("%w: only confirmed transactions can be reversed, got %s", ErrInvalidState, t.Status)
	}

	cmd := command.Command{
		Service: ServiceWallet,
		Action:  "WALLET_TX_REVERSE",
		Method:  http.MethodPost,
		Path:    fmt.Sprintf("/internal/transactions/%s/reverse", t.ExternalTransactionID),
		Body: map[string]any{
			"transactionId": t.ExternalTransactionID,
			"reason":        reason,
			"requestedBy":   actor.Username,
		},
		ResourceType: "wallet_transaction",
		ResourceID:   t.ExternalTransactionID,
		Description:  reason,
	}

	_, err = s.dispatch.Execute(ctx, actor, cmd, func(ctx context.Context) error {
		return s.walletTxs.UpdateStatusLocal(ctx, id, model.WalletTxReversed)
	})
	return err
}

func (s *Service) ConfirmWalletTransaction(ctx context.Context, actor audit.Actor, id int64) error {
	t, err := s.walletTxs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return ErrNotFound
	}
	if t.Status != model.WalletTxPending {
		return fmt.Errorf("%w: only pending transactions can be confirmed, got %s", ErrInvalidState, t.Status)
	}

	cmd := command.Command{
		Service: ServiceWallet,
		Action:  "WALLET_TX_CONFIRM",
		Method:  http.MethodPost,
		Path:    fmt.Sprintf("/internal/transactions/%s/confirm", t.ExternalTransactionID),
		Body: map[string]any{
			"transactionId": t.ExternalTransactionID,
			"requestedBy":   actor.Username,
		},
		ResourceType: "wallet_transaction",
		ResourceID:   t.ExternalTransactionID,
	}

	_, err = s.dispatch.Execute(ctx, actor, cmd, func(ctx context.Context) error {
		return s.walletTxs.UpdateStatusLocal(ctx, id, model.WalletTxConfirmed)
	})
	return err
}

// AdjustWalletBalance credits or debits a user's wallet directly. There
// is no cache row to reconcile; the wallet service emits a
// wallet.transaction.created event that lands through the consumer.
func (s *Service) AdjustWalletBalance(ctx context.Context, actor audit.Actor, userID string, amount decimal.Decimal, reason string) error {
	if amount.IsZero() {
		return fmt.Errorf("%w: zero adjustment", ErrInvalidState)
	}

	cmd := command.Command{
		Service: ServiceWallet,
		Action:  "WALLET_ADJUST",
		Method:  http.MethodPost,
		Path:    fmt.Sprintf("/internal/wallets/%s/adjust", userID),
		Body: map[string]any{
			"userId":      userID,
			"amount":      amount,
			"reason":      reason,
			"requestedBy": actor.Username,
		},
		ResourceType: "wallet",
		ResourceID:   userID,
		Description:  reason,
	}

	_, err := s.dispatch.Execute(ctx, actor, cmd, nil)
	return err
}
