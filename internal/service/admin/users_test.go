package admin

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ccm-platform/carbon-admin/internal/audit"
	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/ccm-platform/carbon-admin/internal/repository"
	"github.com/ccm-platform/carbon-admin/internal/service/sync"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsersRepo struct {
	repository.UsersRepository

	byID map[int64]*model.ManagedUser

	statusUpdates []statusUpdate
	kycUpdates    []model.KycStatus
}

type statusUpdate struct {
	id     int64
	status model.ManagedUserStatus
	reason *string
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id int64) (*model.ManagedUser, error) {
	return f.byID[id], nil
}

func (f *fakeUsersRepo) UpdateStatus(ctx context.Context, tx *sqlx.Tx, id int64, status model.ManagedUserStatus, suspensionReason *string) error {
	f.statusUpdates = append(f.statusUpdates, statusUpdate{id, status, suspensionReason})
	return nil
}

func (f *fakeUsersRepo) UpdateKyc(ctx context.Context, tx *sqlx.Tx, id int64, status model.KycStatus) error {
	f.kycUpdates = append(f.kycUpdates, status)
	return nil
}

type captureOutbox struct {
	repository.OutboxRepository

	events []model.OutboxEvent
}

func (c *captureOutbox) Insert(ctx context.Context, tx *sqlx.Tx, ev *model.OutboxEvent) error {
	c.events = append(c.events, *ev)
	return nil
}

type captureAuditRepo struct {
	repository.AuditLogRepository

	actions []string
}

func (c *captureAuditRepo) Insert(ctx context.Context, tx *sqlx.Tx, e *model.AuditLogEntry) error {
	c.actions = append(c.actions, e.ActionName)
	return nil
}

type userServiceFixture struct {
	svc    *Service
	users  *fakeUsersRepo
	outbox *captureOutbox
	audits *captureAuditRepo
	mock   sqlmock.Sqlmock
}

func newUserServiceFixture(t *testing.T) *userServiceFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	extID := "usr-ext-7"
	users := &fakeUsersRepo{byID: map[int64]*model.ManagedUser{
		7: {
			ID:             7,
			ExternalUserID: &extID,
			Email:          "maria@example.com",
			Status:         model.UserActive,
			KycStatus:      model.KycPending,
			SyncedAt:       time.Now().UTC(),
		},
	}}
	outbox := &captureOutbox{}
	audits := &captureAuditRepo{}

	svc := New(sqlx.NewDb(db, "sqlmock"), users, nil, nil, nil,
		sync.NewEmitter(outbox), audit.NewService(audits, nil), nil)

	return &userServiceFixture{svc: svc, users: users, outbox: outbox, audits: audits, mock: mock}
}

func TestSuspendUser_WritesRowAndOutboxTogether(t *testing.T) {
	fx := newUserServiceFixture(t)
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	actor := audit.Actor{Username: "ops-alice", TraceID: "trace-1"}
	err := fx.svc.SuspendUser(context.Background(), actor, 7, "chargeback abuse")
	require.NoError(t, err)

	require.Len(t, fx.users.statusUpdates, 1)
	upd := fx.users.statusUpdates[0]
	assert.Equal(t, model.UserSuspended, upd.status)
	require.NotNil(t, upd.reason)
	assert.Equal(t, "chargeback abuse", *upd.reason)

	require.Len(t, fx.outbox.events, 1)
	ev := fx.outbox.events[0]
	assert.Equal(t, model.EventAdminUserStatusChanged, ev.EventType)
	assert.Equal(t, model.TopicAdminEvents, ev.Topic)
	assert.Equal(t, "usr-ext-7", ev.AggregateID)
	assert.Equal(t, "usr-ext-7", ev.PartitionKey)

	var env model.Envelope
	require.NoError(t, json.Unmarshal(ev.Payload, &env))
	assert.Equal(t, model.OriginAdminService, env.Metadata.Origin)
	assert.Equal(t, "trace-1", env.Metadata.CorrelationID)
	assert.Equal(t, "ops-alice", env.Metadata.Actor)

	var p model.AdminUserStatusPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "SUSPEND", p.Action)
	assert.Equal(t, "maria@example.com", p.Email)

	assert.Equal(t, []string{"USER_SUSPEND"}, fx.audits.actions)
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestChangeUserStatus_SameStatusRejected(t *testing.T) {
	fx := newUserServiceFixture(t)

	err := fx.svc.ActivateUser(context.Background(), audit.Actor{Username: "ops-alice"}, 7)
	require.ErrorIs(t, err, ErrInvalidState)

	assert.Empty(t, fx.users.statusUpdates)
	assert.Empty(t, fx.outbox.events)
	assert.Empty(t, fx.audits.actions)
}

func TestChangeUserStatus_UnknownUser(t *testing.T) {
	fx := newUserServiceFixture(t)

	err := fx.svc.SuspendUser(context.Background(), audit.Actor{}, 99, "whatever")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, fx.outbox.events)
}

func TestUnlockUser_ClearsSuspensionReason(t *testing.T) {
	fx := newUserServiceFixture(t)
	fx.users.byID[7].Status = model.UserLocked
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	err := fx.svc.UnlockUser(context.Background(), audit.Actor{Username: "ops-alice"}, 7)
	require.NoError(t, err)

	require.Len(t, fx.users.statusUpdates, 1)
	assert.Equal(t, model.UserActive, fx.users.statusUpdates[0].status)
	assert.Nil(t, fx.users.statusUpdates[0].reason)
	assert.Equal(t, []string{"USER_UNLOCK"}, fx.audits.actions)
}

func TestUpdateUserKyc(t *testing.T) {
	fx := newUserServiceFixture(t)
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	err := fx.svc.UpdateUserKyc(context.Background(), audit.Actor{Username: "ops-alice"}, 7, model.KycVerified)
	require.NoError(t, err)

	assert.Equal(t, []model.KycStatus{model.KycVerified}, fx.users.kycUpdates)
	require.Len(t, fx.outbox.events, 1)
	assert.Equal(t, model.EventAdminKycUpdated, fx.outbox.events[0].EventType)
	assert.Equal(t, []string{"USER_KYC_UPDATE"}, fx.audits.actions)
}

func TestUpdateUserKyc_InvalidStatus(t *testing.T) {
	fx := newUserServiceFixture(t)

	err := fx.svc.UpdateUserKyc(context.Background(), audit.Actor{}, 7, model.KycStatus("MAYBE"))
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, fx.users.kycUpdates)
}

func TestUserAggregateID_FallsBackToEmail(t *testing.T) {
	fx := newUserServiceFixture(t)
	fx.users.byID[7].ExternalUserID = nil
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	err := fx.svc.SuspendUser(context.Background(), audit.Actor{Username: "ops-alice"}, 7, "fraud")
	require.NoError(t, err)

	require.Len(t, fx.outbox.events, 1)
	assert.Equal(t, "maria@example.com", fx.outbox.events[0].AggregateID)
}
