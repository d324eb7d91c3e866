package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeValidate(t *testing.T) {
	valid := Envelope{ID: "01ARZ3NDEKTSV4RRFFQ69G5FAV", Type: EventPaymentCompleted, AggregateID: "PAY_1"}
	assert.NoError(t, valid.Validate())

	assert.ErrorIs(t, Envelope{Type: "x", AggregateID: "y"}.Validate(), ErrInvalidEnvelope)
	assert.ErrorIs(t, Envelope{ID: "x", AggregateID: "y"}.Validate(), ErrInvalidEnvelope)
	assert.ErrorIs(t, Envelope{ID: "x", Type: "y"}.Validate(), ErrInvalidEnvelope)
}

func TestEnvelopeOccurredAt(t *testing.T) {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	withTS := Envelope{Timestamp: now.Add(-time.Hour)}
	assert.Equal(t, now.Add(-time.Hour), withTS.OccurredAt(now))

	var withoutTS Envelope
	assert.Equal(t, now, withoutTS.OccurredAt(now))
}

func TestNewEnvelope(t *testing.T) {
	payload := PaymentFailedPayload{PaymentCode: "PAY_9", Reason: "card declined"}
	env, err := NewEnvelope("id-1", EventPaymentFailed, "payment-service", "PAY_9", payload, Metadata{
		CorrelationID: "corr-1",
		Origin:        "payment-service",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, env.Version)
	assert.Equal(t, "PAY_9", env.AggregateID)
	assert.False(t, env.Timestamp.IsZero())

	var back PaymentFailedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &back))
	assert.Equal(t, payload, back)
}

func TestDLQTopic(t *testing.T) {
	assert.Equal(t, "payment.events.dlq", DLQTopic(TopicPaymentEvents))
}

func TestParseKycStatus(t *testing.T) {
	assert.Equal(t, KycVerified, ParseKycStatus("APPROVED"))
	assert.Equal(t, KycVerified, ParseKycStatus("verified"))
	assert.Equal(t, KycRejected, ParseKycStatus(" REJECTED "))
	assert.Equal(t, KycPending, ParseKycStatus("whatever"))
}

func TestParseUserType(t *testing.T) {
	got, ok := ParseUserType("buyer")
	assert.True(t, ok)
	assert.Equal(t, UserTypeBuyer, got)

	got, ok = ParseUserType("unknown")
	assert.False(t, ok)
	assert.Equal(t, UserTypeEVOwner, got)
}
