package command

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ccm-platform/carbon-admin/internal/audit"
)

// ErrGatewayUnavailable means the target service could not serve the
// command: breaker open, transport failure, or a non-2xx reply.
var ErrGatewayUnavailable = errors.New("target service unavailable")

// Command is one externally consequential admin action aimed at a
// sibling service.
type Command struct {
	Service string // target service name, labels metrics and audit rows
	Action  string // audit action stem, e.g. "WALLET_TX_REVERSE"
	Method  string
	Path    string
	Body    any

	ResourceType string
	ResourceID   string
	Description  string
}

// Result is what a Client's Do returns on success.
type Result struct {
	Stub   bool // true when no real call was made
	Status int
	Body   json.RawMessage
}

// Client executes commands against one target service. Whether a live
// HTTP client or a stub is wired depends on per-service configuration,
// the dispatcher does not care which.
type Client interface {
	Name() string
	Do(ctx context.Context, actor audit.Actor, cmd Command) (*Result, error)
}
