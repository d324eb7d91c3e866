package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCapturingDB records every statement text so tests can assert on
// the dynamically built column list, not just that something ran.
func newCapturingDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, *[]string) {
	t.Helper()
	queries := &[]string{}
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherFunc(
		func(expectedSQL, actualSQL string) error {
			*queries = append(*queries, actualSQL)
			return nil
		})))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock, queries
}

// Sync writes must never reach the admin overlay columns: a suspended
// user stays suspended no matter what the owning service's events say.
func TestUpdateSyncedFields_NeverTouchesOverlayColumns(t *testing.T) {
	db, mock, queries := newCapturingDB(t)
	repo := NewUsersRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	extID, name, phone := "usr-1001", "Maria Petrova", "+49111"
	userType := model.UserTypeBuyer
	err = repo.UpdateSyncedFields(context.Background(), tx, 7, &extID, &name, &phone, &userType, time.Now().UTC())
	require.NoError(t, err)

	require.Len(t, *queries, 1)
	q := (*queries)[0]
	assert.Contains(t, q, "external_user_id")
	assert.Contains(t, q, "full_name")
	assert.Contains(t, q, "user_type")
	assert.NotContains(t, q, "suspension_reason")
	assert.NotContains(t, q, "status")
}

func TestTransactionsUpdateFromEvent_NeverTouchesDispute(t *testing.T) {
	db, mock, queries := newCapturingDB(t)
	repo := NewTransactionsRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	amount := decimal.RequireFromString("150.50")
	reason := "card declined"
	completedAt := time.Now().UTC()
	err = repo.UpdateFromEvent(context.Background(), tx, 41,
		model.TxCompleted, &amount, &reason, &completedAt, completedAt)
	require.NoError(t, err)

	require.Len(t, *queries, 1)
	q := (*queries)[0]
	assert.Contains(t, q, "amount")
	assert.Contains(t, q, "failure_reason")
	assert.NotContains(t, q, "dispute_reason")
}

func TestListingsUpdateFromEvent_NeverTouchesOverlayColumns(t *testing.T) {
	db, mock, queries := newCapturingDB(t)
	repo := NewListingsRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	status := model.ListingSold
	credits := decimal.RequireFromString("120")
	price := decimal.RequireFromString("4.25")
	err = repo.UpdateFromEvent(context.Background(), tx, 9, &status, &credits, &price, time.Now().UTC())
	require.NoError(t, err)

	require.Len(t, *queries, 1)
	q := (*queries)[0]
	assert.Contains(t, q, "credits_amount")
	assert.Contains(t, q, "price_per_credit")
	assert.NotContains(t, q, "flag_type")
	assert.NotContains(t, q, "flag_reason")
	assert.NotContains(t, q, "suspension_reason")
}
