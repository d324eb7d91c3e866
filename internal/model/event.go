package model

import (
	"encoding/json"
	"errors"
	"time"
)

// Event types carried in Envelope.Type. Inbound events come from the
// owning services; admin.* events are emitted by this service.
const (
	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"

	EventUserCreated    = "user.created"
	EventUserUpdated    = "user.updated"
	EventUserKycUpdated = "user.kyc.status_updated"

	EventWalletTxCreated   = "wallet.transaction.created"
	EventWalletTxConfirmed = "wallet.transaction.confirmed"
	EventWalletTxFailed    = "wallet.transaction.failed"

	EventListingCreated = "listing.created"
	EventListingUpdated = "listing.updated"

	EventAdminUserUpdated       = "admin.user.updated"
	EventAdminKycUpdated        = "admin.kyc.updated"
	EventAdminUserStatusChanged = "admin.user.status_changed"
	EventAdminListingFlagged    = "admin.listing.flagged"
)

// Kafka topics, one per domain boundary. Admin-originated events get
// their own topic so owning services can tell them apart from their
// own event streams.
const (
	TopicPaymentEvents = "payment.events"
	TopicUserEvents    = "user.events"
	TopicWalletEvents  = "wallet.events"
	TopicListingEvents = "listing.events"
	TopicAdminEvents   = "admin.events"
)

// OriginAdminService marks envelopes produced by this service.
// Consumers drop events carrying their own origin to avoid sync loops.
const OriginAdminService = "admin-service"

// DLQTopic returns the dead-letter topic paired with a source topic.
func DLQTopic(topic string) string { return topic + ".dlq" }

// Metadata carries tracing and loop-avoidance context with every event.
type Metadata struct {
	CorrelationID string `json:"correlationId"`
	CausationID   string `json:"causationId,omitempty"`
	Actor         string `json:"actor,omitempty"`
	Origin        string `json:"origin,omitempty"`
}

// Envelope is the wire schema shared by the outbox publisher and all
// consumers. Payload stays raw so each handler decodes its own type.
type Envelope struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Version     int             `json:"version"`
	Source      string          `json:"source"`
	AggregateID string          `json:"aggregateId"`
	Timestamp   time.Time       `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
	Metadata    Metadata        `json:"metadata"`
}

var ErrInvalidEnvelope = errors.New("invalid event envelope")

// Validate checks the fields every envelope must carry.
func (e Envelope) Validate() error {
	if e.ID == "" || e.Type == "" || e.AggregateID == "" {
		return ErrInvalidEnvelope
	}
	return nil
}

// OccurredAt returns the event's own timestamp when set, else now.
func (e Envelope) OccurredAt(now time.Time) time.Time {
	if e.Timestamp.IsZero() {
		return now
	}
	return e.Timestamp
}

// NewEnvelope builds a version-1 envelope with a marshaled payload.
func NewEnvelope(id, eventType, source, aggregateID string, payload any, meta Metadata) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:          id,
		Type:        eventType,
		Version:     1,
		Source:      source,
		AggregateID: aggregateID,
		Timestamp:   time.Now().UTC(),
		Payload:     raw,
		Metadata:    meta,
	}, nil
}
