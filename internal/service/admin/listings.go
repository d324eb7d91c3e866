package admin

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ccm-platform/carbon-admin/internal/audit"
	"github.com/ccm-platform/carbon-admin/internal/command"
	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/ccm-platform/carbon-admin/internal/repository"
	"github.com/jmoiron/sqlx"
)

func (s *Service) GetListing(ctx context.Context, id int64) (*model.ManagedListing, error) {
	l, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, ErrNotFound
	}
	return l, nil
}

func (s *Service) ListListings(ctx context.Context, f repository.ListingListFilter) ([]model.ManagedListing, error) {
	return s.listings.List(ctx, f)
}

// FlagListing writes the flag overlay and announces it on admin.events.
// The listing stays live; flags are review metadata, so no command goes
// to the listing service.
func (s *Service) FlagListing(ctx context.Context, actor audit.Actor, id int64, flagType, flagReason string) error {
	l, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if l == nil {
		return ErrNotFound
	}
	if flagType == "" {
		return fmt.Errorf("%w: flag type required", ErrInvalidState)
	}

	var reason *string
	if flagReason != "" {
		reason = &flagReason
	}

	payload := model.AdminListingFlaggedPayload{
		ListingID:  l.ExternalListingID,
		FlagType:   flagType,
		FlagReason: flagReason,
		UpdatedBy:  actor.Username,
	}

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.listings.SetFlag(ctx, tx, id, &flagType, reason); err != nil {
			return err
		}
		return s.emitter.Emit(ctx, tx, actor,
			model.EventAdminListingFlagged, "listing", l.ExternalListingID, payload)
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, actor, "LISTING_FLAG", "listing", l.ExternalListingID, flagReason,
		map[string]any{"flagType": l.FlagType}, map[string]any{"flagType": flagType})
	return nil
}

func (s *Service) UnflagListing(ctx context.Context, actor audit.Actor, id int64) error {
	l, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if l == nil {
		return ErrNotFound
	}

	if err := s.listings.SetFlag(ctx, nil, id, nil, nil); err != nil {
		return err
	}

	s.audit.Record(ctx, actor, "LISTING_UNFLAG", "listing", l.ExternalListingID, "",
		map[string]any{"flagType": l.FlagType}, nil)
	return nil
}

// SuspendListing asks the listing service to pull the listing, then
// records the suspension overlay. On the stub path the local status
// flips directly; on the live path it follows the listing.updated event.
func (s *Service) SuspendListing(ctx context.Context, actor audit.Actor, id int64, reason string) error {
	l, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if l == nil {
		return ErrNotFound
	}
	if l.Status == model.ListingSuspended {
		return fmt.Errorf("%w: listing already suspended", ErrInvalidState)
	}

	cmd := command.Command{
		Service: ServiceListing,
		Action:  "LISTING_SUSPEND",
		Method:  http.MethodPost,
		Path:    fmt.Sprintf("/internal/listings/%s/suspend", l.ExternalListingID),
		Body: map[string]any{
			"listingId":   l.ExternalListingID,
			"reason":      reason,
			"requestedBy": actor.Username,
		},
		ResourceType: "listing",
		ResourceID:   l.ExternalListingID,
		Description:  reason,
	}

	var suspensionReason *string
	if reason != "" {
		suspensionReason = &reason
	}

	res, err := s.dispatch.Execute(ctx, actor, cmd, func(ctx context.Context) error {
		return s.listings.SetSuspension(ctx, nil, id, model.ListingSuspended, suspensionReason)
	})
	if err != nil {
		return err
	}
	if !res.Stub {
		// Overlay reason is recorded now; the status column waits for the
		// owning service's listing.updated event.
		return s.listings.SetSuspension(ctx, nil, id, l.Status, suspensionReason)
	}
	return nil
}

func (s *Service) ReinstateListing(ctx context.Context, actor audit.Actor, id int64) error {
	l, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if l == nil {
		return ErrNotFound
	}
	if l.Status != model.ListingSuspended {
		return fmt.Errorf("%w: listing not suspended", ErrInvalidState)
	}

	cmd := command.Command{
		Service: ServiceListing,
		Action:  "LISTING_REINSTATE",
		Method:  http.MethodPost,
		Path:    fmt.Sprintf("/internal/listings/%s/reinstate", l.ExternalListingID),
		Body: map[string]any{
			"listingId":   l.ExternalListingID,
			"requestedBy": actor.Username,
		},
		ResourceType: "listing",
		ResourceID:   l.ExternalListingID,
	}

	_, err = s.dispatch.Execute(ctx, actor, cmd, func(ctx context.Context) error {
		return s.listings.SetSuspension(ctx, nil, id, model.ListingActive, nil)
	})
	return err
}
