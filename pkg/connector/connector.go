package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrNotConfigured is returned by Invoke when stub responses are disabled
// and no real provider adapter has been registered for the target.
var ErrNotConfigured = errors.New("connector: no provider adapter configured and stub responses disabled")

// Adapter is a live provider SDK adapter. Out of scope per spec.md §1; the
// gateway ships none, but Connector lets a host register one per provider.
type Adapter func(ctx context.Context, req InvokeRequest) (InvokeResponse, error)

// Connector performs the post-decision model-invocation handoff. It never
// holds the audit chain or any other shared lock while invoking — per
// §5 "Model invocation... is allowed to block but must not hold any shared
// locks."
type Connector struct {
	stubResponses bool
	clock         func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	adapters map[string]Adapter
}

// NewConnector constructs a Connector. stubResponses mirrors the
// MODEL_GARDEN_STUB_RESPONSES environment flag.
func NewConnector(stubResponses bool) *Connector {
	return &Connector{
		stubResponses: stubResponses,
		clock:         time.Now,
		limiters:      make(map[string]*rate.Limiter),
		adapters:      make(map[string]Adapter),
	}
}

// RegisterAdapter wires a live provider adapter in by name (e.g. "openai").
// Unregistered providers fall back to the stub path when stub responses are
// enabled; otherwise Invoke returns ErrNotConfigured for them.
func (c *Connector) RegisterAdapter(provider string, rps float64, burst int, adapter Adapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapters[provider] = adapter
	c.limiters[provider] = rate.NewLimiter(rate.Limit(rps), burst)
}

// Invoke performs the handoff for a selected route target. It enforces the
// provider's own rate limit (the core enforces none globally, per §5) and
// returns a deterministic stub response when no adapter is registered and
// stubbing is enabled.
func (c *Connector) Invoke(ctx context.Context, req InvokeRequest) (InvokeResponse, error) {
	provider := req.Target.Provider

	c.mu.Lock()
	adapter, hasAdapter := c.adapters[provider]
	limiter := c.limiters[provider]
	c.mu.Unlock()

	if hasAdapter {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return InvokeResponse{}, fmt.Errorf("connector: rate limit wait: %w", err)
			}
		}
		start := c.clock()
		resp, err := adapter(ctx, req)
		resp.Latency = c.clock().Sub(start)
		return resp, err
	}

	if !c.stubResponses {
		return InvokeResponse{}, ErrNotConfigured
	}

	return c.stubResponse(req), nil
}

func (c *Connector) stubResponse(req InvokeRequest) InvokeResponse {
	return InvokeResponse{
		Provider:   req.Target.Provider,
		TargetID:   req.Target.ID,
		Output:     fmt.Sprintf("[stub response from %s/%s]", req.Target.Provider, req.Target.ID),
		Stubbed:    true,
		StubReason: "MODEL_GARDEN_STUB_RESPONSES enabled, no live adapter registered",
	}
}
