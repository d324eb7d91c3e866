package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ccm-platform/carbon-admin/internal/logger"
	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/ccm-platform/carbon-admin/internal/repository"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const ListingConsumerName = "listing-sync"

// ListingHandler maintains managed_listings from the listing service's
// event stream. Flag and suspension overlays are admin-owned and never
// written here.
type ListingHandler struct {
	DB        *sqlx.DB
	Processed repository.ProcessedEventsRepository
	Listings  repository.ListingsRepository

	now func() time.Time
}

func NewListingHandler(db *sqlx.DB, processed repository.ProcessedEventsRepository, listings repository.ListingsRepository) *ListingHandler {
	return &ListingHandler{DB: db, Processed: processed, Listings: listings, now: time.Now}
}

func (h *ListingHandler) Handle(ctx context.Context, env model.Envelope) (Outcome, error) {
	switch env.Type {
	case model.EventListingCreated, model.EventListingUpdated:
	default:
		return OutcomeSkipped, nil
	}

	var p model.ListingPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.ListingID == "" {
		logger.Log.Warn("listing event payload unusable",
			zap.String("event_id", env.ID),
			zap.String("event_type", env.Type),
			zap.Error(err))
		return OutcomeSkipped, nil
	}

	occurred := env.OccurredAt(h.now().UTC())

	var status *model.ListingStatus
	if s := model.ListingStatus(p.Status); s.Valid() {
		status = &s
	}

	// listing.created is a one-time transition, dedup on the business
	// key; updates legitimately repeat, so they dedup per envelope.
	key := env.ID
	if env.Type == model.EventListingCreated {
		key = "created:" + p.ListingID
	}

	return applyOnce(ctx, h.DB, h.Processed, ListingConsumerName, key, func(tx *sqlx.Tx) error {
		existing, err := h.Listings.GetByExternalID(ctx, tx, p.ListingID)
		if err != nil {
			return err
		}
		if existing == nil {
			l := model.ManagedListing{
				ExternalListingID: p.ListingID,
				CreditsAmount:     p.CreditsAmount,
				PricePerCredit:    p.PricePerCredit,
				ListingType:       p.ListingType,
				Status:            model.ListingActive,
				SyncedAt:          occurred,
			}
			if p.OwnerID != "" {
				l.OwnerID = &p.OwnerID
			}
			if status != nil {
				l.Status = *status
			}
			return h.Listings.Insert(ctx, tx, &l)
		}
		if existing.SyncedAt.After(occurred) {
			return nil
		}
		return h.Listings.UpdateFromEvent(ctx, tx, existing.ID,
			status, &p.CreditsAmount, &p.PricePerCredit, occurred)
	})
}
