package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ccm-platform/carbon-admin/internal/audit"
	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/ccm-platform/carbon-admin/internal/repository"
	"github.com/ccm-platform/carbon-admin/internal/util"
	"github.com/jmoiron/sqlx"
)

// Emitter writes admin-originated events into the outbox, in the same
// transaction as the local mutation they announce. Every envelope
// carries Origin=admin-service so this service's own consumers drop it
// on the way back in.
type Emitter struct {
	outbox repository.OutboxRepository
	source string
}

func NewEmitter(outbox repository.OutboxRepository) *Emitter {
	return &Emitter{outbox: outbox, source: model.OriginAdminService}
}

// Emit builds the envelope and inserts the outbox row. Must be called
// with the transaction of the change being announced.
func (e *Emitter) Emit(ctx context.Context, tx *sqlx.Tx, actor audit.Actor, eventType, aggregateType, aggregateID string, payload any) error {
	correlationID := actor.TraceID
	if correlationID == "" {
		correlationID = util.New()
	}

	env, err := model.NewEnvelope(util.New(), eventType, e.source, aggregateID, payload, model.Metadata{
		CorrelationID: correlationID,
		Actor:         actor.Username,
		Origin:        model.OriginAdminService,
	})
	if err != nil {
		return fmt.Errorf("build envelope: %w", err)
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	return e.outbox.Insert(ctx, tx, &model.OutboxEvent{
		EventID:       env.ID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
		Topic:         model.TopicAdminEvents,
		PartitionKey:  aggregateID,
	})
}
