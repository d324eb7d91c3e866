package command

import (
	"context"
	"errors"
	"testing"

	"github.com/ccm-platform/carbon-admin/internal/audit"
	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/ccm-platform/carbon-admin/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureAuditRepo struct {
	repository.AuditLogRepository

	actions []string
}

func (c *captureAuditRepo) Insert(ctx context.Context, tx *sqlx.Tx, e *model.AuditLogEntry) error {
	c.actions = append(c.actions, e.ActionName)
	return nil
}

type scriptedClient struct {
	name   string
	result *Result
	err    error

	calls int
}

func (c *scriptedClient) Name() string { return c.name }

func (c *scriptedClient) Do(ctx context.Context, actor audit.Actor, cmd Command) (*Result, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

func newTestDispatcher(client Client) (*Dispatcher, *captureAuditRepo) {
	repo := &captureAuditRepo{}
	d := NewDispatcher(audit.NewService(repo, nil), map[string]Client{"wallet": client})
	return d, repo
}

func reverseCmd() Command {
	return Command{
		Service:      "wallet",
		Action:       "WALLET_TX_REVERSE",
		Method:       "POST",
		Path:         "/internal/transactions/WTX_1/reverse",
		ResourceType: "wallet_transaction",
		ResourceID:   "WTX_1",
		Description:  "reverse wallet transaction WTX_1",
	}
}

func TestExecute_LiveSuccessAuditTrail(t *testing.T) {
	client := &scriptedClient{name: "wallet", result: &Result{Status: 200}}
	d, repo := newTestDispatcher(client)

	res, err := d.Execute(context.Background(), audit.Actor{Username: "ops-alice"}, reverseCmd(), nil)
	require.NoError(t, err)
	assert.False(t, res.Stub)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, []string{"WALLET_TX_REVERSE_INITIATED", "WALLET_TX_REVERSE_SUCCEEDED"}, repo.actions)
}

func TestExecute_FailureAuditsInitiatedThenFailed(t *testing.T) {
	client := &scriptedClient{name: "wallet", err: ErrGatewayUnavailable}
	d, repo := newTestDispatcher(client)

	cacheTouched := false
	_, err := d.Execute(context.Background(), audit.Actor{Username: "ops-alice"}, reverseCmd(),
		func(ctx context.Context) error { cacheTouched = true; return nil })

	require.ErrorIs(t, err, ErrGatewayUnavailable)
	// the INITIATED entry must exist even though the call never landed
	assert.Equal(t, []string{"WALLET_TX_REVERSE_INITIATED", "WALLET_TX_REVERSE_FAILED"}, repo.actions)
	assert.False(t, cacheTouched, "cache must stay untouched when the command fails")
}

func TestExecute_StubPathAppliesLocalCache(t *testing.T) {
	client := &scriptedClient{name: "wallet", result: &Result{Stub: true, Status: 200}}
	d, repo := newTestDispatcher(client)

	cacheTouched := false
	res, err := d.Execute(context.Background(), audit.Actor{Username: "ops-alice"}, reverseCmd(),
		func(ctx context.Context) error { cacheTouched = true; return nil })

	require.NoError(t, err)
	assert.True(t, res.Stub)
	assert.True(t, cacheTouched)
	assert.Equal(t, []string{"WALLET_TX_REVERSE_INITIATED", "WALLET_TX_REVERSE_SUCCEEDED"}, repo.actions)
}

func TestExecute_LiveSuccessSkipsCacheCallback(t *testing.T) {
	client := &scriptedClient{name: "wallet", result: &Result{Status: 200}}
	d, _ := newTestDispatcher(client)

	cacheTouched := false
	_, err := d.Execute(context.Background(), audit.Actor{Username: "ops-alice"}, reverseCmd(),
		func(ctx context.Context) error { cacheTouched = true; return nil })

	require.NoError(t, err)
	// live path: the owning service's event updates the cache, not us
	assert.False(t, cacheTouched)
}

func TestExecute_StubCacheErrorSurfacesButKeepsResult(t *testing.T) {
	client := &scriptedClient{name: "wallet", result: &Result{Stub: true, Status: 200}}
	d, _ := newTestDispatcher(client)

	res, err := d.Execute(context.Background(), audit.Actor{Username: "ops-alice"}, reverseCmd(),
		func(ctx context.Context) error { return errors.New("row locked") })

	require.Error(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Stub)
}

func TestExecute_UnknownServiceErrors(t *testing.T) {
	d, repo := newTestDispatcher(&scriptedClient{name: "wallet"})

	cmd := reverseCmd()
	cmd.Service = "billing"
	_, err := d.Execute(context.Background(), audit.Actor{}, cmd, nil)

	require.Error(t, err)
	assert.Empty(t, repo.actions, "no audit entries for a misrouted command")
}
