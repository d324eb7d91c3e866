package admin

import (
	"context"
	"fmt"

	"github.com/ccm-platform/carbon-admin/internal/audit"
	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/ccm-platform/carbon-admin/internal/repository"
	"github.com/jmoiron/sqlx"
)

// User account state is admin-owned: suspend/lock decisions originate
// here and flow out to the user service as admin.user.status_changed
// events. The outbox insert shares the row update's transaction.

func (s *Service) GetUser(ctx context.Context, id int64) (*model.ManagedUser, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context, f repository.UserListFilter) ([]model.ManagedUser, error) {
	return s.users.List(ctx, f)
}

func (s *Service) SuspendUser(ctx context.Context, actor audit.Actor, id int64, reason string) error {
	return s.changeUserStatus(ctx, actor, id, model.UserSuspended, "SUSPEND", reason)
}

func (s *Service) ActivateUser(ctx context.Context, actor audit.Actor, id int64) error {
	return s.changeUserStatus(ctx, actor, id, model.UserActive, "ACTIVATE", "")
}

func (s *Service) LockUser(ctx context.Context, actor audit.Actor, id int64, reason string) error {
	return s.changeUserStatus(ctx, actor, id, model.UserLocked, "LOCK", reason)
}

func (s *Service) UnlockUser(ctx context.Context, actor audit.Actor, id int64) error {
	return s.changeUserStatus(ctx, actor, id, model.UserActive, "UNLOCK", "")
}

func (s *Service) changeUserStatus(ctx context.Context, actor audit.Actor, id int64, status model.ManagedUserStatus, action, reason string) error {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrNotFound
	}
	if u.Status == status {
		return fmt.Errorf("%w: user already %s", ErrInvalidState, status)
	}

	var suspensionReason *string
	if status != model.UserActive && reason != "" {
		suspensionReason = &reason
	}

	payload := model.AdminUserStatusPayload{
		UserID:    userAggregateID(u),
		Email:     u.Email,
		Action:    action,
		Reason:    reason,
		UpdatedBy: actor.Username,
	}

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.users.UpdateStatus(ctx, tx, id, status, suspensionReason); err != nil {
			return err
		}
		return s.emitter.Emit(ctx, tx, actor,
			model.EventAdminUserStatusChanged, "user", userAggregateID(u), payload)
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, actor, "USER_"+action, "user", fmt.Sprint(id),
		reason, map[string]any{"status": u.Status}, map[string]any{"status": status})
	return nil
}

func (s *Service) UpdateUserProfile(ctx context.Context, actor audit.Actor, id int64, fullName, phone *string) error {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrNotFound
	}
	if fullName == nil && phone == nil {
		return fmt.Errorf("%w: nothing to update", ErrInvalidState)
	}

	payload := model.AdminUserUpdatedPayload{
		UserID:    userAggregateID(u),
		Email:     u.Email,
		FullName:  fullName,
		Phone:     phone,
		UpdatedBy: actor.Username,
	}

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.users.UpdateProfile(ctx, tx, id, fullName, phone); err != nil {
			return err
		}
		return s.emitter.Emit(ctx, tx, actor,
			model.EventAdminUserUpdated, "user", userAggregateID(u), payload)
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, actor, "USER_PROFILE_UPDATE", "user", fmt.Sprint(id), "",
		map[string]any{"fullName": u.FullName, "phone": u.Phone},
		map[string]any{"fullName": fullName, "phone": phone})
	return nil
}

func (s *Service) UpdateUserKyc(ctx context.Context, actor audit.Actor, id int64, status model.KycStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: kyc status %q", ErrInvalidState, status)
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrNotFound
	}

	payload := model.AdminKycUpdatedPayload{
		UserID:    userAggregateID(u),
		Email:     u.Email,
		KycStatus: status.String(),
		UpdatedBy: actor.Username,
	}

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.users.UpdateKyc(ctx, tx, id, status); err != nil {
			return err
		}
		return s.emitter.Emit(ctx, tx, actor,
			model.EventAdminKycUpdated, "user", userAggregateID(u), payload)
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, actor, "USER_KYC_UPDATE", "user", fmt.Sprint(id), "",
		map[string]any{"kycStatus": u.KycStatus}, map[string]any{"kycStatus": status})
	return nil
}

func (s *Service) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// userAggregateID prefers the owning service's ID; rows created locally
// before first sync fall back to email.
func userAggregateID(u *model.ManagedUser) string {
	if u.ExternalUserID != nil && *u.ExternalUserID != "" {
		return *u.ExternalUserID
	}
	return u.Email
}
