// Package orchestrator ties the gateway's pipeline together: preprocess →
// evaluate → (if executable) scorer → audit → optional model invocation
// handoff → assembled response. Per spec.md §2.7 and §5.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/TimMatthis/auzguard/pkg/audit"
	"github.com/TimMatthis/auzguard/pkg/connector"
	"github.com/TimMatthis/auzguard/pkg/policy"
	"github.com/TimMatthis/auzguard/pkg/routing"
)

// ErrPolicyNotFound maps to the POLICY_NOT_FOUND failure mode.
var ErrPolicyNotFound = errors.New("POLICY_NOT_FOUND")

// ErrRoutingError maps to the ROUTING_ERROR failure mode: routing without
// candidates.
var ErrRoutingError = errors.New("ROUTING_ERROR")

// ErrCancelled maps to the CancellationOrTimeout error kind: the request
// deadline expired before the audit append succeeded, so nothing was
// persisted.
var ErrCancelled = errors.New("request cancelled or deadline exceeded before audit commit")

// Request is one inbound decision request.
type Request struct {
	PolicyID   string
	OrgID      string
	ActorID    string
	Payload    map[string]any
	Preference *routing.RoutingPreference
}

// Snapshot is the read-only configuration view an orchestrator run
// executes against: one atomic view of policies, pools, and targets, per
// §5's "neither request sees a partial update."
type Snapshot interface {
	Policy(policyID string) (policy.Policy, bool)
	Pool(poolID string) (routing.ModelPool, []routing.RouteTarget, bool)
}

// AuditPersister durably records audit entries already committed to the
// in-memory hash chain, e.g. pkg/store.Store. The hash chain itself is
// always the source of truth for integrity verification; persistence here
// is a best-effort write-behind so entries survive process restarts.
type AuditPersister interface {
	PersistAuditEntry(ctx context.Context, e audit.Entry) error
}

// Result is the assembled response of one orchestrator run.
type Result struct {
	Decision     policy.Decision
	AuditEntryID string
	Routing      *routing.RoutingDecision
	Invocation   *connector.InvokeResponse
	Duration     time.Duration
}

// isExecutable reports whether a decision effect proceeds to routing and
// invocation. BLOCK and REQUIRE_OVERRIDE (not yet overridden) never reach
// the scorer or connector.
func isExecutable(effect policy.Effect) bool {
	switch effect {
	case policy.Allow, policy.Route, policy.WarnRoute, policy.AllowWithOverride, policy.RouteWithOverride:
		return true
	default:
		return false
	}
}

// needsRouting reports whether a decision effect selects a model endpoint
// at all (ALLOW has nowhere to route).
func needsRouting(d policy.Decision) bool {
	switch d.Decision {
	case policy.Route, policy.WarnRoute, policy.RouteWithOverride:
		return true
	default:
		return d.RouteTo != ""
	}
}
