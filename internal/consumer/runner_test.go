package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ccm-platform/carbon-admin/internal/kafka"
	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	commits []kafka.Message
}

// scriptedSource feeds queued messages to Run and blocks on Fetch once
// drained, like a quiet partition.
type scriptedSource struct {
	msgs chan kafka.Message

	mu      sync.Mutex
	commits []kafka.Message
}

func newScriptedSource(buffer int) *scriptedSource {
	return &scriptedSource{msgs: make(chan kafka.Message, buffer+1)}
}

func (s *scriptedSource) Fetch(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-s.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (s *scriptedSource) Commit(ctx context.Context, m kafka.Message) error {
	s.mu.Lock()
	s.commits = append(s.commits, m)
	s.mu.Unlock()
	return nil
}

func (s *scriptedSource) committed() []kafka.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]kafka.Message(nil), s.commits...)
}

func (s *fakeSource) Fetch(ctx context.Context) (kafka.Message, error) {
	return kafka.Message{}, errors.New("not used")
}

func (s *fakeSource) Commit(ctx context.Context, m kafka.Message) error {
	s.commits = append(s.commits, m)
	return nil
}

type fakeHandler struct {
	calls   int
	failFor int // first N calls return err
	outcome Outcome
	err     error
}

func (h *fakeHandler) Handle(ctx context.Context, env model.Envelope) (Outcome, error) {
	h.calls++
	if h.err != nil && (h.failFor == 0 || h.calls <= h.failFor) {
		return OutcomeSkipped, h.err
	}
	return h.outcome, nil
}

type fakeDLQ struct {
	err      error
	messages []brokerMsg
}

type brokerMsg struct {
	topic, key string
	value      []byte
}

func (d *fakeDLQ) Publish(ctx context.Context, topic, key string, value []byte) error {
	if d.err != nil {
		return d.err
	}
	d.messages = append(d.messages, brokerMsg{topic, key, value})
	return nil
}

func newTestRunner(h Handler) (*Runner, *fakeSource, *fakeDLQ) {
	src := &fakeSource{}
	dlq := &fakeDLQ{}
	r := NewRunner("payment-sync", model.TopicPaymentEvents, src, h, dlq)
	r.RetryBase = time.Millisecond
	r.RetryMax = 2 * time.Millisecond
	return r, src, dlq
}

func envelopeMsg(t *testing.T, env model.Envelope) kafka.Message {
	t.Helper()
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(env.AggregateID), Value: b}
}

func TestProcessOne_AppliedCommits(t *testing.T) {
	h := &fakeHandler{outcome: OutcomeApplied}
	r, src, dlq := newTestRunner(h)

	env := model.Envelope{ID: "evt-1", Type: model.EventPaymentCompleted, AggregateID: "PAY_1"}
	require.NoError(t, r.ProcessOne(context.Background(), envelopeMsg(t, env)))

	assert.Equal(t, 1, h.calls)
	assert.Len(t, src.commits, 1)
	assert.Empty(t, dlq.messages)
}

func TestProcessOne_OwnOriginSkippedWithoutHandler(t *testing.T) {
	h := &fakeHandler{outcome: OutcomeApplied}
	r, src, _ := newTestRunner(h)

	env := model.Envelope{
		ID:          "evt-2",
		Type:        model.EventUserUpdated,
		AggregateID: "user-9",
		Metadata:    model.Metadata{Origin: model.OriginAdminService},
	}
	require.NoError(t, r.ProcessOne(context.Background(), envelopeMsg(t, env)))

	assert.Zero(t, h.calls, "events we published must not loop back through the handler")
	assert.Len(t, src.commits, 1)
}

func TestProcessOne_MalformedGoesToDLQAndCommits(t *testing.T) {
	h := &fakeHandler{}
	r, src, dlq := newTestRunner(h)

	m := kafka.Message{Key: []byte("k"), Value: []byte(`{not json`)}
	require.NoError(t, r.ProcessOne(context.Background(), m))

	assert.Zero(t, h.calls)
	require.Len(t, dlq.messages, 1)
	assert.Equal(t, "payment.events.dlq", dlq.messages[0].topic)
	assert.Equal(t, []byte(`{not json`), dlq.messages[0].value)
	assert.Len(t, src.commits, 1)
}

func TestProcessOne_InvalidEnvelopeGoesToDLQ(t *testing.T) {
	h := &fakeHandler{}
	r, src, dlq := newTestRunner(h)

	// decodes fine but has no event ID
	env := model.Envelope{Type: model.EventPaymentCompleted, AggregateID: "PAY_1"}
	require.NoError(t, r.ProcessOne(context.Background(), envelopeMsg(t, env)))

	assert.Zero(t, h.calls)
	assert.Len(t, dlq.messages, 1)
	assert.Len(t, src.commits, 1)
}

func TestProcessOne_TransientErrorRetriesThenApplies(t *testing.T) {
	h := &fakeHandler{outcome: OutcomeApplied, err: errors.New("deadlock"), failFor: 1}
	r, src, dlq := newTestRunner(h)

	env := model.Envelope{ID: "evt-3", Type: model.EventPaymentCompleted, AggregateID: "PAY_2"}
	require.NoError(t, r.ProcessOne(context.Background(), envelopeMsg(t, env)))

	assert.Equal(t, 2, h.calls)
	assert.Empty(t, dlq.messages)
	assert.Len(t, src.commits, 1)
}

func TestProcessOne_ExhaustedRetriesDeadLetters(t *testing.T) {
	h := &fakeHandler{err: errors.New("column gone")}
	r, src, dlq := newTestRunner(h)
	r.MaxAttempts = 3

	env := model.Envelope{ID: "evt-4", Type: model.EventPaymentCompleted, AggregateID: "PAY_3"}
	m := envelopeMsg(t, env)
	require.NoError(t, r.ProcessOne(context.Background(), m))

	assert.Equal(t, 3, h.calls)
	require.Len(t, dlq.messages, 1)
	assert.Equal(t, "payment.events.dlq", dlq.messages[0].topic)
	assert.Equal(t, "PAY_3", dlq.messages[0].key)
	assert.Equal(t, m.Value, dlq.messages[0].value)
	assert.Len(t, src.commits, 1)
}

func TestProcessOne_DLQFailureLeavesUncommitted(t *testing.T) {
	h := &fakeHandler{err: errors.New("still failing")}
	r, src, dlq := newTestRunner(h)
	dlq.err = errors.New("dlq down")

	env := model.Envelope{ID: "evt-5", Type: model.EventPaymentCompleted, AggregateID: "PAY_4"}
	err := r.ProcessOne(context.Background(), envelopeMsg(t, env))

	// fatal: the stranded message must stop the runner, or a concurrent
	// worker committing a later offset would skip it forever
	require.Error(t, err)
	assert.Empty(t, src.commits)
}

func TestRun_StopsWhenDeadLetterFails(t *testing.T) {
	h := &fakeHandler{err: errors.New("column gone")}
	src := newScriptedSource(1)
	dlq := &fakeDLQ{err: errors.New("dlq down")}

	r := NewRunner("payment-sync", model.TopicPaymentEvents, src, h, dlq)
	r.Workers = 4
	r.MaxAttempts = 1
	r.RetryBase = time.Millisecond
	r.RetryMax = 2 * time.Millisecond

	env := model.Envelope{ID: "evt-7", Type: model.EventPaymentCompleted, AggregateID: "PAY_7"}
	src.msgs <- envelopeMsg(t, env)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// the runner must come down instead of letting the other workers
	// keep committing offsets past the stranded message
	err := r.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dlq")
	assert.Empty(t, src.committed())
}

func TestRun_CancelReturnsNil(t *testing.T) {
	h := &fakeHandler{outcome: OutcomeApplied}
	src := newScriptedSource(0)

	r := NewRunner("payment-sync", model.TopicPaymentEvents, src, h, &fakeDLQ{})
	r.Workers = 2

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	require.NoError(t, r.Run(ctx))
}

func TestProcessOne_DuplicateCommits(t *testing.T) {
	h := &fakeHandler{outcome: OutcomeDuplicate}
	r, src, dlq := newTestRunner(h)

	env := model.Envelope{ID: "evt-6", Type: model.EventPaymentCompleted, AggregateID: "PAY_5"}
	require.NoError(t, r.ProcessOne(context.Background(), envelopeMsg(t, env)))

	assert.Equal(t, 1, h.calls)
	assert.Empty(t, dlq.messages)
	assert.Len(t, src.commits, 1)
}
