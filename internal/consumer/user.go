package consumer

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/ccm-platform/carbon-admin/internal/logger"
	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/ccm-platform/carbon-admin/internal/repository"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const UserConsumerName = "user-sync"

// UserHandler maintains managed_users from the user service's event
// stream. Rows are matched by email, since the user service keys its
// own events that way; the external numeric ID is mirrored when known.
type UserHandler struct {
	DB        *sqlx.DB
	Processed repository.ProcessedEventsRepository
	Users     repository.UsersRepository

	now func() time.Time
}

func NewUserHandler(db *sqlx.DB, processed repository.ProcessedEventsRepository, users repository.UsersRepository) *UserHandler {
	return &UserHandler{DB: db, Processed: processed, Users: users, now: time.Now}
}

func (h *UserHandler) Handle(ctx context.Context, env model.Envelope) (Outcome, error) {
	switch env.Type {
	case model.EventUserCreated:
		return h.handleCreated(ctx, env)
	case model.EventUserUpdated:
		return h.handleUpdated(ctx, env)
	case model.EventUserKycUpdated:
		return h.handleKycUpdated(ctx, env)
	default:
		return OutcomeSkipped, nil
	}
}

func (h *UserHandler) handleCreated(ctx context.Context, env model.Envelope) (Outcome, error) {
	var p model.UserCreatedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.Email == "" {
		logger.Log.Warn("user.created payload unusable",
			zap.String("event_id", env.ID), zap.Error(err))
		return OutcomeSkipped, nil
	}

	occurred := env.OccurredAt(h.now().UTC())
	externalID := strconv.FormatInt(p.ID, 10)
	userType, _ := model.ParseUserType(p.UserType)

	// Creation happens once per user, so the dedup key is the business
	// key: a re-emitted event with a fresh envelope ID stays a duplicate.
	return applyOnce(ctx, h.DB, h.Processed, UserConsumerName, "created:"+externalID, func(tx *sqlx.Tx) error {
		existing, err := h.Users.GetByEmail(ctx, tx, p.Email)
		if err != nil {
			return err
		}
		if existing == nil {
			u := model.ManagedUser{
				ExternalUserID: &externalID,
				Email:          p.Email,
				FullName:       p.FullName,
				Phone:          p.Phone,
				UserType:       userType,
				Status:         model.UserActive,
				KycStatus:      model.KycPending,
				SyncedAt:       occurred,
			}
			return h.Users.Insert(ctx, tx, &u)
		}
		// Row pre-dates its own created event (out-of-order delivery or a
		// pre-provisioned record): fill mirrored fields only.
		return h.Users.UpdateSyncedFields(ctx, tx, existing.ID,
			&externalID, p.FullName, p.Phone, &userType, occurred)
	})
}

func (h *UserHandler) handleUpdated(ctx context.Context, env model.Envelope) (Outcome, error) {
	var p model.UserUpdatedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.Email == "" {
		logger.Log.Warn("user.updated payload unusable",
			zap.String("event_id", env.ID), zap.Error(err))
		return OutcomeSkipped, nil
	}

	occurred := env.OccurredAt(h.now().UTC())
	externalID := strconv.FormatInt(p.ID, 10)

	var userType *model.UserType
	if p.UserType != nil {
		t, _ := model.ParseUserType(*p.UserType)
		userType = &t
	}

	return applyOnce(ctx, h.DB, h.Processed, UserConsumerName, env.ID, func(tx *sqlx.Tx) error {
		existing, err := h.Users.GetByEmail(ctx, tx, p.Email)
		if err != nil {
			return err
		}
		if existing == nil {
			u := model.ManagedUser{
				ExternalUserID: &externalID,
				Email:          p.Email,
				FullName:       p.FullName,
				Phone:          p.Phone,
				Status:         model.UserActive,
				KycStatus:      model.KycPending,
				SyncedAt:       occurred,
			}
			if userType != nil {
				u.UserType = *userType
			} else {
				u.UserType = model.UserTypeEVOwner
			}
			return h.Users.Insert(ctx, tx, &u)
		}
		if existing.SyncedAt.After(occurred) {
			return nil
		}
		return h.Users.UpdateSyncedFields(ctx, tx, existing.ID,
			&externalID, p.FullName, p.Phone, userType, occurred)
	})
}

func (h *UserHandler) handleKycUpdated(ctx context.Context, env model.Envelope) (Outcome, error) {
	var p model.UserKycStatusPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.Email == "" {
		logger.Log.Warn("user.kyc payload unusable",
			zap.String("event_id", env.ID), zap.Error(err))
		return OutcomeSkipped, nil
	}

	occurred := env.OccurredAt(h.now().UTC())
	status := model.ParseKycStatus(p.KycStatus)

	return applyOnce(ctx, h.DB, h.Processed, UserConsumerName, env.ID, func(tx *sqlx.Tx) error {
		existing, err := h.Users.GetByEmail(ctx, tx, p.Email)
		if err != nil {
			return err
		}
		if existing == nil {
			externalID := strconv.FormatInt(p.UserID, 10)
			u := model.ManagedUser{
				ExternalUserID: &externalID,
				Email:          p.Email,
				UserType:       model.UserTypeEVOwner,
				Status:         model.UserActive,
				KycStatus:      status,
				SyncedAt:       occurred,
			}
			return h.Users.Insert(ctx, tx, &u)
		}
		if existing.SyncedAt.After(occurred) {
			return nil
		}
		return h.Users.UpdateKycFromEvent(ctx, tx, existing.ID, status, occurred)
	})
}
