package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/ccm-platform/carbon-admin/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutboxRepo struct {
	repository.OutboxRepository

	due []model.OutboxEvent

	published []int64
	failures  []failureCall
}

type failureCall struct {
	id          int64
	errMsg      string
	nextRetryAt time.Time
	terminal    bool
}

func (f *fakeOutboxRepo) ClaimDue(ctx context.Context, tx *sqlx.Tx, limit int, now time.Time) ([]model.OutboxEvent, error) {
	return f.due, nil
}

func (f *fakeOutboxRepo) MarkPublished(ctx context.Context, tx *sqlx.Tx, id int64, now time.Time) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeOutboxRepo) RecordFailure(ctx context.Context, tx *sqlx.Tx, id int64, errMsg string, nextRetryAt time.Time, terminal bool, now time.Time) error {
	f.failures = append(f.failures, failureCall{id, errMsg, nextRetryAt, terminal})
	return nil
}

type fakeBroker struct {
	err      error
	messages []brokerMsg
}

type brokerMsg struct {
	topic, key string
	value      []byte
}

func (b *fakeBroker) Publish(ctx context.Context, topic, key string, value []byte) error {
	if b.err != nil {
		return b.err
	}
	b.messages = append(b.messages, brokerMsg{topic, key, value})
	return nil
}

func newTestPublisher(t *testing.T, repo repository.OutboxRepository, broker Broker) (*Publisher, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	p := NewPublisher(sqlx.NewDb(db, "sqlmock"), repo, broker)
	p.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return p, mock
}

func TestPublishDue_Success(t *testing.T) {
	repo := &fakeOutboxRepo{due: []model.OutboxEvent{
		{ID: 1, EventID: "e1", Topic: model.TopicAdminEvents, PartitionKey: "user-1", Payload: []byte(`{}`), MaxRetries: 5},
		{ID: 2, EventID: "e2", Topic: model.TopicAdminEvents, AggregateID: "user-2", Payload: []byte(`{}`), MaxRetries: 5},
	}}
	broker := &fakeBroker{}
	p, mock := newTestPublisher(t, repo, broker)

	mock.ExpectBegin()
	mock.ExpectCommit()

	n, err := p.PublishDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2}, repo.published)
	assert.Empty(t, repo.failures)

	// aggregate ID is the partition key fallback
	require.Len(t, broker.messages, 2)
	assert.Equal(t, "user-1", broker.messages[0].key)
	assert.Equal(t, "user-2", broker.messages[1].key)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishDue_Empty(t *testing.T) {
	p, mock := newTestPublisher(t, &fakeOutboxRepo{}, &fakeBroker{})

	mock.ExpectBegin()
	mock.ExpectCommit()

	n, err := p.PublishDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishDue_FailureSchedulesRetry(t *testing.T) {
	repo := &fakeOutboxRepo{due: []model.OutboxEvent{
		{ID: 7, EventID: "e7", Topic: model.TopicUserEvents, RetryCount: 0, MaxRetries: 5, Payload: []byte(`{}`)},
	}}
	p, mock := newTestPublisher(t, repo, &fakeBroker{err: errors.New("broker down")})

	mock.ExpectBegin()
	mock.ExpectCommit()

	n, err := p.PublishDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	require.Len(t, repo.failures, 1)
	f := repo.failures[0]
	assert.Equal(t, int64(7), f.id)
	assert.False(t, f.terminal)
	assert.Contains(t, f.errMsg, "broker down")
	// first failure backs off by the base interval
	assert.Equal(t, p.now().UTC().Add(p.BaseBackoff), f.nextRetryAt)
}

func TestPublishDue_ExhaustionIsTerminal(t *testing.T) {
	repo := &fakeOutboxRepo{due: []model.OutboxEvent{
		{ID: 9, EventID: "e9", Topic: model.TopicUserEvents, RetryCount: 4, MaxRetries: 5, Payload: []byte(`{}`)},
	}}
	p, mock := newTestPublisher(t, repo, &fakeBroker{err: errors.New("still down")})

	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := p.PublishDue(context.Background())
	require.NoError(t, err)

	require.Len(t, repo.failures, 1)
	assert.True(t, repo.failures[0].terminal)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	p := &Publisher{BaseBackoff: time.Minute, MaxBackoff: 16 * time.Minute}

	assert.Equal(t, time.Minute, p.backoff(1))
	assert.Equal(t, 2*time.Minute, p.backoff(2))
	assert.Equal(t, 8*time.Minute, p.backoff(4))
	assert.Equal(t, 16*time.Minute, p.backoff(5))
	assert.Equal(t, 16*time.Minute, p.backoff(12))
}
