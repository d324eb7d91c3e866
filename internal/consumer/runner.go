package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ccm-platform/carbon-admin/internal/kafka"
	"github.com/ccm-platform/carbon-admin/internal/logger"
	"github.com/ccm-platform/carbon-admin/internal/metrics"
	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Outcome is a handler's verdict on a single event.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeDuplicate
	OutcomeSkipped
)

// Handler applies one decoded envelope. Implementations must be
// idempotent: the runner delivers at-least-once and a handler may see
// the same event on any number of workers.
type Handler interface {
	Handle(ctx context.Context, env model.Envelope) (Outcome, error)
}

// Source is the fetch/commit side of a consumer group subscription.
type Source interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// Broker is the dead-letter write side.
type Broker interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Runner drives one topic subscription: a fetch loop fans messages out
// to Workers goroutines, each of which applies the handler with bounded
// in-process retries and commits only after the outcome is durable.
// Exhausted events go to the topic's dead-letter queue and are then
// committed, so one poison event cannot stall the partition.
type Runner struct {
	Name    string // consumer identity, also the dedup namespace
	Topic   string
	Source  Source
	Handler Handler
	DLQ     Broker

	Workers     int
	MaxAttempts int
	RetryBase   time.Duration
	RetryMax    time.Duration
}

func NewRunner(name, topic string, src Source, h Handler, dlq Broker) *Runner {
	return &Runner{
		Name:        name,
		Topic:       topic,
		Source:      src,
		Handler:     h,
		DLQ:         dlq,
		Workers:     10,
		MaxAttempts: 3,
		RetryBase:   200 * time.Millisecond,
		RetryMax:    5 * time.Second,
	}
}

// Run blocks until ctx is cancelled or a worker hits a fatal error
// (dead-letter publish failure: no later offset may be committed past
// the stranded message, so the whole runner stops).
func (r *Runner) Run(ctx context.Context) error {
	if r.Workers <= 0 {
		r.Workers = 10
	}
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = 3
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	msgCh := make(chan kafka.Message, r.Workers*2)

	go func() {
		defer close(msgCh)
		for {
			m, err := r.Source.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Log.Error("kafka fetch failed",
					zap.String("consumer", r.Name), zap.Error(err))
				time.Sleep(200 * time.Millisecond)
				continue
			}
			select {
			case msgCh <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	for i := 0; i < r.Workers; i++ {
		go r.runWorker(ctx, cancel, msgCh)
	}

	logger.Log.Info("consumer started",
		zap.String("consumer", r.Name),
		zap.String("topic", r.Topic),
		zap.Int("workers", r.Workers))

	<-ctx.Done()
	if err := context.Cause(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func (r *Runner) runWorker(ctx context.Context, cancel context.CancelCauseFunc, in <-chan kafka.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			if err := r.ProcessOne(ctx, m); err != nil {
				cancel(err)
				return
			}
		}
	}
}

// ProcessOne handles a single fetched message end to end, including the
// commit. Exported so tests can drive the pipeline without Kafka. A
// non-nil return is fatal for the runner: the message could neither be
// applied nor dead-lettered, and with concurrent workers any commit of
// a later offset would advance the group past it for good.
func (r *Runner) ProcessOne(ctx context.Context, m kafka.Message) error {
	var env model.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return r.dropMalformed(ctx, m, err)
	}
	if err := env.Validate(); err != nil {
		return r.dropMalformed(ctx, m, err)
	}

	// Events this service published come back on shared topics; applying
	// them again would bounce admin changes in a loop.
	if env.Metadata.Origin == model.OriginAdminService {
		metrics.EventsConsumedTotal.WithLabelValues("skipped", env.Type).Inc()
		r.commit(ctx, m, env.ID)
		return nil
	}

	outcome, err := r.applyWithRetry(ctx, env)
	if err != nil {
		return r.deadLetter(ctx, m, env, err)
	}

	switch outcome {
	case OutcomeApplied:
		metrics.EventsConsumedTotal.WithLabelValues("applied", env.Type).Inc()
	case OutcomeDuplicate:
		metrics.EventsConsumedTotal.WithLabelValues("duplicate", env.Type).Inc()
		logger.Log.Debug("duplicate event skipped",
			zap.String("consumer", r.Name), zap.String("event_id", env.ID))
	default:
		metrics.EventsConsumedTotal.WithLabelValues("skipped", env.Type).Inc()
	}

	r.commit(ctx, m, env.ID)
	return nil
}

func (r *Runner) applyWithRetry(ctx context.Context, env model.Envelope) (Outcome, error) {
	base := r.RetryBase
	if base <= 0 {
		base = 200 * time.Millisecond
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base
	if r.RetryMax > 0 {
		bo.MaxInterval = r.RetryMax
	}

	var outcome Outcome
	op := func() error {
		var err error
		outcome, err = r.Handler.Handle(ctx, env)
		return err
	}

	err := backoff.Retry(op,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(r.MaxAttempts-1)), ctx))
	return outcome, err
}

// dropMalformed commits a message that can never be applied. The raw
// bytes go to the DLQ so the bad producer can be found later. A failed
// DLQ publish is fatal, the message stays uncommitted for redelivery.
func (r *Runner) dropMalformed(ctx context.Context, m kafka.Message, cause error) error {
	metrics.EventsConsumedTotal.WithLabelValues("malformed", "unknown").Inc()
	logger.Log.Warn("malformed event",
		zap.String("consumer", r.Name),
		zap.String("topic", r.Topic),
		zap.Error(cause))

	if r.DLQ != nil {
		if err := r.DLQ.Publish(ctx, model.DLQTopic(r.Topic), string(m.Key), m.Value); err != nil {
			return fmt.Errorf("dlq publish for malformed message: %w", err)
		}
	}
	r.commit(ctx, m, "")
	return nil
}

func (r *Runner) deadLetter(ctx context.Context, m kafka.Message, env model.Envelope, cause error) error {
	logger.Log.Error("event exhausted retries, dead-lettering",
		zap.String("consumer", r.Name),
		zap.String("event_id", env.ID),
		zap.String("event_type", env.Type),
		zap.Error(cause))

	if r.DLQ != nil {
		if err := r.DLQ.Publish(ctx, model.DLQTopic(r.Topic), env.AggregateID, m.Value); err != nil {
			return fmt.Errorf("dlq publish for event %s: %w", env.ID, err)
		}
	}
	metrics.EventsConsumedTotal.WithLabelValues("dead_lettered", env.Type).Inc()
	r.commit(ctx, m, env.ID)
	return nil
}

func (r *Runner) commit(ctx context.Context, m kafka.Message, eventID string) {
	if err := r.Source.Commit(ctx, m); err != nil {
		logger.Log.Error("kafka commit failed",
			zap.String("consumer", r.Name),
			zap.String("event_id", eventID),
			zap.Error(err))
	}
}
