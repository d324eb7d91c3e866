package admin

import (
	"context"

	"github.com/ccm-platform/carbon-admin/internal/audit"
	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/ccm-platform/carbon-admin/internal/repository"
)

func (s *Service) GetTransaction(ctx context.Context, code string) (*model.ManagedTransaction, error) {
	t, err := s.txs.GetByExternalID(ctx, nil, code)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotFound
	}
	return t, nil
}

func (s *Service) ListTransactions(ctx context.Context, f repository.TransactionListFilter) ([]model.ManagedTransaction, error) {
	return s.txs.List(ctx, f)
}

// SetTransactionDispute writes the dispute overlay. Purely local: the
// payment service keeps owning the transaction itself.
func (s *Service) SetTransactionDispute(ctx context.Context, actor audit.Actor, code string, reason *string) error {
	t, err := s.txs.GetByExternalID(ctx, nil, code)
	if err != nil {
		return err
	}
	if t == nil {
		return ErrNotFound
	}

	if err := s.txs.SetDisputeReason(ctx, t.ID, reason); err != nil {
		return err
	}

	s.audit.Record(ctx, actor, "TRANSACTION_DISPUTE_SET", "transaction", code, "",
		map[string]any{"disputeReason": t.DisputeReason},
		map[string]any{"disputeReason": reason})
	return nil
}
