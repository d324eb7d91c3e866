package outbox

import (
	"context"
	"time"

	"github.com/ccm-platform/carbon-admin/internal/logger"
	"github.com/ccm-platform/carbon-admin/internal/metrics"
	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/ccm-platform/carbon-admin/internal/repository"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Broker abstracts the message bus write side so the publisher can be
// tested without Kafka.
type Broker interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Publisher drains PENDING outbox rows to the broker. Multiple
// instances may run concurrently; row claiming uses SKIP LOCKED so no
// event is published by two instances in the same pass.
type Publisher struct {
	DB     *sqlx.DB
	Repo   repository.OutboxRepository
	Broker Broker

	Interval     time.Duration
	BatchSize    int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	ArchiveAfter time.Duration

	now func() time.Time
}

func NewPublisher(db *sqlx.DB, repo repository.OutboxRepository, broker Broker) *Publisher {
	return &Publisher{
		DB:           db,
		Repo:         repo,
		Broker:       broker,
		Interval:     10 * time.Second,
		BatchSize:    50,
		BaseBackoff:  time.Minute,
		MaxBackoff:   16 * time.Minute,
		ArchiveAfter: 7 * 24 * time.Hour,
		now:          time.Now,
	}
}

// Run polls until ctx is cancelled. The archive sweep piggybacks on the
// poll ticker at a much lower cadence.
func (p *Publisher) Run(ctx context.Context) error {
	if p.Interval <= 0 {
		p.Interval = 10 * time.Second
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 50
	}

	tick := time.NewTicker(p.Interval)
	defer tick.Stop()

	archiveEvery := time.Hour
	lastArchive := p.now()

	logger.Log.Info("outbox publisher started",
		zap.Duration("interval", p.Interval),
		zap.Int("batch_size", p.BatchSize))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			if _, err := p.PublishDue(ctx); err != nil {
				logger.Log.Error("outbox pass failed", zap.Error(err))
			}
			if p.ArchiveAfter > 0 && p.now().Sub(lastArchive) >= archiveEvery {
				lastArchive = p.now()
				n, err := p.Repo.ArchivePublishedBefore(ctx, p.now().Add(-p.ArchiveAfter))
				if err != nil {
					logger.Log.Error("outbox archive sweep failed", zap.Error(err))
				} else if n > 0 {
					logger.Log.Info("outbox archived", zap.Int64("rows", n))
				}
			}
		}
	}
}

// PublishDue claims one batch of due events and pushes each to the
// broker, recording per-row outcomes in the claiming transaction.
// Returns the number of events published.
func (p *Publisher) PublishDue(ctx context.Context) (int, error) {
	now := p.now().UTC()

	tx, err := p.DB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	events, err := p.Repo.ClaimDue(ctx, tx, p.BatchSize, now)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, tx.Commit()
	}

	published := 0
	for i := range events {
		ev := &events[i]
		if err := p.publishOne(ctx, tx, ev, now); err != nil {
			return published, err
		}
		if ev.Status == model.OutboxPublished {
			published++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return published, nil
}

func (p *Publisher) publishOne(ctx context.Context, tx *sqlx.Tx, ev *model.OutboxEvent, now time.Time) error {
	key := ev.PartitionKey
	if key == "" {
		key = ev.AggregateID
	}

	perr := p.Broker.Publish(ctx, ev.Topic, key, ev.Payload)
	if perr == nil {
		if err := p.Repo.MarkPublished(ctx, tx, ev.ID, now); err != nil {
			return err
		}
		ev.Status = model.OutboxPublished
		metrics.OutboxPublishedTotal.WithLabelValues("published", ev.Topic).Inc()
		return nil
	}

	attempt := ev.RetryCount + 1
	terminal := attempt >= ev.MaxRetries
	nextRetryAt := now.Add(p.backoff(attempt))

	if err := p.Repo.RecordFailure(ctx, tx, ev.ID, perr.Error(), nextRetryAt, terminal, now); err != nil {
		return err
	}

	if terminal {
		ev.Status = model.OutboxFailed
		metrics.OutboxPublishedTotal.WithLabelValues("failed", ev.Topic).Inc()
		logger.Log.Error("outbox event exhausted retries",
			zap.String("event_id", ev.EventID),
			zap.String("topic", ev.Topic),
			zap.Int("attempts", attempt),
			zap.Error(perr))
	} else {
		metrics.OutboxPublishedTotal.WithLabelValues("retried", ev.Topic).Inc()
		logger.Log.Warn("outbox publish failed, will retry",
			zap.String("event_id", ev.EventID),
			zap.String("topic", ev.Topic),
			zap.Int("attempt", attempt),
			zap.Time("next_retry_at", nextRetryAt),
			zap.Error(perr))
	}
	return nil
}

// backoff returns base * 2^(attempt-1) capped at MaxBackoff. The delay
// is stored in next_retry_at, so the schedule survives restarts.
func (p *Publisher) backoff(attempt int) time.Duration {
	d := p.BaseBackoff
	if d <= 0 {
		d = time.Minute
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}
