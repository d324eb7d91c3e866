package command

import (
	"context"
	"fmt"

	"github.com/ccm-platform/carbon-admin/internal/audit"
	"github.com/ccm-platform/carbon-admin/internal/metrics"
	"github.com/ccm-platform/carbon-admin/internal/model"
)

// Dispatcher executes admin commands against sibling services with the
// audit contract: an *_INITIATED entry exists before any outbound call,
// and exactly one of *_SUCCEEDED / *_FAILED follows. On the stub path
// the optional onStubApplied callback mutates the local cache, since no
// owning service will ever emit the confirming event.
type Dispatcher struct {
	audit   *audit.Service
	clients map[string]Client
}

func NewDispatcher(auditSvc *audit.Service, clients map[string]Client) *Dispatcher {
	return &Dispatcher{audit: auditSvc, clients: clients}
}

func (d *Dispatcher) Execute(ctx context.Context, actor audit.Actor, cmd Command, onStubApplied func(ctx context.Context) error) (*Result, error) {
	client, ok := d.clients[cmd.Service]
	if !ok {
		return nil, fmt.Errorf("no client for service %q", cmd.Service)
	}

	d.audit.Record(ctx, actor, cmd.Action+model.AuditInitiated,
		cmd.ResourceType, cmd.ResourceID, cmd.Description, nil, cmd.Body)

	res, err := client.Do(ctx, actor, cmd)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues("failed", cmd.Service).Inc()
		d.audit.Record(ctx, actor, cmd.Action+model.AuditFailed,
			cmd.ResourceType, cmd.ResourceID, err.Error(), nil, nil)
		return nil, err
	}

	d.audit.Record(ctx, actor, cmd.Action+model.AuditSucceeded,
		cmd.ResourceType, cmd.ResourceID, cmd.Description, nil, cmd.Body)

	if res.Stub {
		metrics.CommandsTotal.WithLabelValues("stubbed", cmd.Service).Inc()
		if onStubApplied != nil {
			if err := onStubApplied(ctx); err != nil {
				// The command itself succeeded; a stale cache row will be
				// corrected by the next sync or manual refresh.
				return res, fmt.Errorf("stub cache update: %w", err)
			}
		}
		return res, nil
	}

	metrics.CommandsTotal.WithLabelValues("succeeded", cmd.Service).Inc()
	return res, nil
}
