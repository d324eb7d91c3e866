package model

import "time"

type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "PENDING"
	OutboxPublished OutboxStatus = "PUBLISHED"
	OutboxFailed    OutboxStatus = "FAILED"
	OutboxArchived  OutboxStatus = "ARCHIVED"
)

func (s OutboxStatus) String() string { return string(s) }

func (s OutboxStatus) Valid() bool {
	return s == OutboxPending || s == OutboxPublished || s == OutboxFailed || s == OutboxArchived
}

// DefaultMaxRetries bounds publisher delivery attempts per event.
const DefaultMaxRetries = 5

// OutboxEvent is one pending domain event, written in the same
// transaction as the state change it announces. Only the publisher
// mutates rows after insert.
type OutboxEvent struct {
	ID            int64        `db:"id"`
	EventID       string       `db:"event_id"` // ULID, unique, downstream dedup candidate
	AggregateType string       `db:"aggregate_type"`
	AggregateID   string       `db:"aggregate_id"`
	EventType     string       `db:"event_type"`
	Payload       []byte       `db:"payload"` // serialized Envelope
	Topic         string       `db:"topic"`
	PartitionKey  string       `db:"partition_key"`
	Status        OutboxStatus `db:"status"`
	RetryCount    int          `db:"retry_count"`
	MaxRetries    int          `db:"max_retries"`
	LastRetryAt   *time.Time   `db:"last_retry_at"`
	NextRetryAt   *time.Time   `db:"next_retry_at"`
	LastError     *string      `db:"last_error"`
	CreatedAt     time.Time    `db:"created_at"`
	PublishedAt   *time.Time   `db:"published_at"`
}
