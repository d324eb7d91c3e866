package command

import (
	"context"
	"net/http"

	"github.com/ccm-platform/carbon-admin/internal/audit"
	"github.com/ccm-platform/carbon-admin/internal/logger"
	"go.uber.org/zap"
)

// StubClient stands in for a service integration that is disabled in
// config. Commands succeed without any outbound call; the dispatcher
// sees Stub=true and applies the effect to the local cache instead.
type StubClient struct {
	name string
}

func NewStubClient(name string) *StubClient {
	return &StubClient{name: name}
}

func (c *StubClient) Name() string { return c.name }

func (c *StubClient) Do(ctx context.Context, actor audit.Actor, cmd Command) (*Result, error) {
	logger.Log.Info("stubbed command",
		zap.String("service", c.name),
		zap.String("action", cmd.Action),
		zap.String("resource_id", cmd.ResourceID))
	return &Result{Stub: true, Status: http.StatusOK}, nil
}
