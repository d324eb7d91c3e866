package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ccm-platform/carbon-admin/internal/audit"
)

// HTTPClient calls a sibling service's internal API. Requests carry the
// admin identity headers the owning services use to distinguish
// back-office calls from their own traffic, and a breaker keeps a dead
// service from absorbing every command's full timeout.
type HTTPClient struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
	br      *MicroBreaker
}

func NewHTTPClient(name, baseURL, apiKey string, timeoutMs, failThreshold, openForMs int) *HTTPClient {
	if timeoutMs <= 0 {
		timeoutMs = 3000
	}
	if failThreshold <= 0 {
		failThreshold = 3
	}
	if openForMs <= 0 {
		openForMs = 15000
	}

	return &HTTPClient{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		br:      NewMicroBreaker(failThreshold, time.Duration(openForMs)*time.Millisecond),
	}
}

func (c *HTTPClient) Name() string { return c.name }

func (c *HTTPClient) Do(ctx context.Context, actor audit.Actor, cmd Command) (*Result, error) {
	if !c.br.TryAcquire() {
		return nil, fmt.Errorf("%w: service=%s breaker open", ErrGatewayUnavailable, c.name)
	}

	res, err := c.do(ctx, actor, cmd)
	if err != nil {
		c.br.OnFailure()
		return nil, fmt.Errorf("%w: service=%s: %v", ErrGatewayUnavailable, c.name, err)
	}

	c.br.OnSuccess()
	return res, nil
}

func (c *HTTPClient) do(ctx context.Context, actor audit.Actor, cmd Command) (*Result, error) {
	var body io.Reader
	if cmd.Body != nil {
		b, err := json.Marshal(cmd.Body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	method := cmd.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+cmd.Path, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Request", "true")
	if actor.AdminUserID != nil {
		req.Header.Set("X-Admin-User-Id", strconv.FormatInt(*actor.AdminUserID, 10))
	}
	if actor.TraceID != "" {
		req.Header.Set("X-Trace-Id", actor.TraceID)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Internal-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("service=%s path=%s status=%d", c.name, cmd.Path, resp.StatusCode)
	}

	return &Result{Status: resp.StatusCode, Body: raw}, nil
}
