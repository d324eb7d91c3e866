package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/ccm-platform/carbon-admin/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memProcessed is an in-memory stand-in for the processed_events table.
type memProcessed struct {
	seen map[string]bool
}

func newMemProcessed() *memProcessed { return &memProcessed{seen: map[string]bool{}} }

func (m *memProcessed) MarkProcessed(ctx context.Context, tx *sqlx.Tx, consumer, key string) (bool, error) {
	k := consumer + "|" + key
	if m.seen[k] {
		return false, nil
	}
	m.seen[k] = true
	return true, nil
}

func (m *memProcessed) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeTransactionsRepo struct {
	repository.TransactionsRepository

	byExternalID map[string]*model.ManagedTransaction

	inserts []model.ManagedTransaction
	updates []txUpdate
}

type txUpdate struct {
	id     int64
	status model.TransactionStatus
	reason *string
}

func newFakeTransactionsRepo() *fakeTransactionsRepo {
	return &fakeTransactionsRepo{byExternalID: map[string]*model.ManagedTransaction{}}
}

func (f *fakeTransactionsRepo) GetByExternalID(ctx context.Context, tx *sqlx.Tx, externalID string) (*model.ManagedTransaction, error) {
	return f.byExternalID[externalID], nil
}

func (f *fakeTransactionsRepo) Insert(ctx context.Context, tx *sqlx.Tx, t *model.ManagedTransaction) error {
	f.inserts = append(f.inserts, *t)
	return nil
}

func (f *fakeTransactionsRepo) UpdateFromEvent(ctx context.Context, tx *sqlx.Tx, id int64, status model.TransactionStatus, amount *decimal.Decimal, failureReason *string, completedAt *time.Time, syncedAt time.Time) error {
	f.updates = append(f.updates, txUpdate{id: id, status: status, reason: failureReason})
	return nil
}

func newPaymentHandler(t *testing.T, txs *fakeTransactionsRepo, processed *memProcessed) (*PaymentHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := NewPaymentHandler(sqlx.NewDb(db, "sqlmock"), processed, txs)
	h.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return h, mock
}

func completedEnvelope(t *testing.T, code string, amount string, at time.Time) model.Envelope {
	t.Helper()
	amt, err := decimal.NewFromString(amount)
	require.NoError(t, err)
	env, err := model.NewEnvelope("evt-"+code, model.EventPaymentCompleted, "payment-service", code,
		model.PaymentCompletedPayload{PaymentCode: code, Amount: amt, UserID: "user-1"}, model.Metadata{})
	require.NoError(t, err)
	env.Timestamp = at
	return env
}

func TestPaymentCompleted_FirstDeliveryInserts(t *testing.T) {
	txs := newFakeTransactionsRepo()
	h, mock := newPaymentHandler(t, txs, newMemProcessed())

	mock.ExpectBegin()
	mock.ExpectCommit()

	occurred := time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC)
	out, err := h.Handle(context.Background(), completedEnvelope(t, "PAY_1", "150.50", occurred))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)

	require.Len(t, txs.inserts, 1)
	ins := txs.inserts[0]
	assert.Equal(t, "PAY_1", ins.ExternalTransactionID)
	assert.Equal(t, model.TxCompleted, ins.Status)
	assert.True(t, ins.Amount.Equal(decimal.RequireFromString("150.50")))
	require.NotNil(t, ins.UserID)
	assert.Equal(t, "user-1", *ins.UserID)
	assert.Equal(t, occurred, ins.SyncedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentCompleted_SecondDeliveryIsDuplicate(t *testing.T) {
	txs := newFakeTransactionsRepo()
	processed := newMemProcessed()
	h, mock := newPaymentHandler(t, txs, processed)

	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	occurred := time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC)
	env := completedEnvelope(t, "PAY_1", "150.50", occurred)

	out, err := h.Handle(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)

	// the broker redelivers with a different envelope ID; the semantic
	// key still matches
	env.ID = "evt-redelivered"
	out, err = h.Handle(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out)

	assert.Len(t, txs.inserts, 1)
	assert.Empty(t, txs.updates)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentCompleted_UpdatesExistingRow(t *testing.T) {
	txs := newFakeTransactionsRepo()
	txs.byExternalID["PAY_2"] = &model.ManagedTransaction{
		ID:                    41,
		ExternalTransactionID: "PAY_2",
		Status:                model.TxPending,
		SyncedAt:              time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC),
	}
	h, mock := newPaymentHandler(t, txs, newMemProcessed())

	mock.ExpectBegin()
	mock.ExpectCommit()

	out, err := h.Handle(context.Background(),
		completedEnvelope(t, "PAY_2", "10", time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)

	assert.Empty(t, txs.inserts)
	require.Len(t, txs.updates, 1)
	assert.Equal(t, int64(41), txs.updates[0].id)
	assert.Equal(t, model.TxCompleted, txs.updates[0].status)
}

func TestPaymentCompleted_StaleEventDoesNotRegress(t *testing.T) {
	txs := newFakeTransactionsRepo()
	txs.byExternalID["PAY_3"] = &model.ManagedTransaction{
		ID:                    42,
		ExternalTransactionID: "PAY_3",
		Status:                model.TxCompleted,
		SyncedAt:              time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	h, mock := newPaymentHandler(t, txs, newMemProcessed())

	mock.ExpectBegin()
	mock.ExpectCommit()

	// event older than the last sync
	out, err := h.Handle(context.Background(),
		completedEnvelope(t, "PAY_3", "10", time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)

	assert.Empty(t, txs.inserts)
	assert.Empty(t, txs.updates)
}

func TestPaymentFailed_RecordsCancellationWithReason(t *testing.T) {
	txs := newFakeTransactionsRepo()
	h, mock := newPaymentHandler(t, txs, newMemProcessed())

	mock.ExpectBegin()
	mock.ExpectCommit()

	env, err := model.NewEnvelope("evt-f1", model.EventPaymentFailed, "payment-service", "PAY_4",
		model.PaymentFailedPayload{PaymentCode: "PAY_4", Reason: "card declined"}, model.Metadata{})
	require.NoError(t, err)

	out, err := h.Handle(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)

	require.Len(t, txs.inserts, 1)
	assert.Equal(t, model.TxCancelled, txs.inserts[0].Status)
	require.NotNil(t, txs.inserts[0].FailureReason)
	assert.Equal(t, "card declined", *txs.inserts[0].FailureReason)
}

func TestPaymentFailed_IndependentOfCompletedDedup(t *testing.T) {
	txs := newFakeTransactionsRepo()
	processed := newMemProcessed()
	h, mock := newPaymentHandler(t, txs, processed)

	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	// a failed then completed event for the same code are distinct
	// transitions, not duplicates of each other
	failed, err := model.NewEnvelope("evt-f2", model.EventPaymentFailed, "payment-service", "PAY_5",
		model.PaymentFailedPayload{PaymentCode: "PAY_5"}, model.Metadata{})
	require.NoError(t, err)

	out, err := h.Handle(context.Background(), failed)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)

	out, err = h.Handle(context.Background(),
		completedEnvelope(t, "PAY_5", "25", time.Now().UTC()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)
}

func TestPayment_UnusablePayloadSkipped(t *testing.T) {
	h, _ := newPaymentHandler(t, newFakeTransactionsRepo(), newMemProcessed())

	env := model.Envelope{
		ID:          "evt-x",
		Type:        model.EventPaymentCompleted,
		AggregateID: "PAY_X",
		Payload:     []byte(`{"amount": "not a payment"}`),
	}
	out, err := h.Handle(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, out)
}

func TestPayment_UnknownEventTypeSkipped(t *testing.T) {
	h, _ := newPaymentHandler(t, newFakeTransactionsRepo(), newMemProcessed())

	env := model.Envelope{ID: "evt-y", Type: "payment.refund_requested", AggregateID: "PAY_Y"}
	out, err := h.Handle(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, out)
}
