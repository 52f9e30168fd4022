package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/TimMatthis/auzguard/pkg/audit"
	"github.com/TimMatthis/auzguard/pkg/connector"
	"github.com/TimMatthis/auzguard/pkg/policy"
	"github.com/TimMatthis/auzguard/pkg/preprocess"
	"github.com/TimMatthis/auzguard/pkg/routing"
)

// Orchestrator wires the five subsystems into the single decision loop.
// It holds no per-request state; everything it touches per call is either
// the immutable Snapshot, the shared audit chain, or worker-local
// variables.
type Orchestrator struct {
	engine    *policy.Engine
	auditLog  *audit.Log
	connector *connector.Connector
	persister AuditPersister
}

// New constructs an Orchestrator.
func New(engine *policy.Engine, auditLog *audit.Log, conn *connector.Connector) *Orchestrator {
	return &Orchestrator{engine: engine, auditLog: auditLog, connector: conn}
}

// WithPersister attaches a durable AuditPersister (e.g. pkg/store.Store)
// and returns the same Orchestrator for chaining. Optional: without one,
// the hash chain stays in-memory only.
func (o *Orchestrator) WithPersister(p AuditPersister) *Orchestrator {
	o.persister = p
	return o
}

// Decide runs one request through preprocess → evaluate → (if executable)
// scorer → audit → optional invoke, honoring ctx's deadline between each
// CPU-bound step. Per §5, the evaluator/preprocessor/scorer observe the
// deadline between steps, not within a single expression, and audit
// append failure (including timeout) means nothing is persisted.
func (o *Orchestrator) Decide(ctx context.Context, snap Snapshot, req Request) (Result, error) {
	start := time.Now()

	pol, ok := snap.Policy(req.PolicyID)
	if !ok {
		return Result{}, ErrPolicyNotFound
	}

	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	enriched := preprocess.Enrich(req.Payload)

	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	decision := o.engine.Evaluate(pol, enriched)

	result := Result{Decision: decision}

	if !isExecutable(decision.Decision) {
		entry, err := o.appendAudit(ctx, pol, req, decision, nil)
		if err != nil {
			return Result{}, err
		}
		result.AuditEntryID = entry.ID
		result.Duration = time.Since(start)
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	var routingDecision *routing.RoutingDecision
	if needsRouting(decision) {
		poolID := decision.RouteTo
		if poolID == "" {
			poolID = req.PolicyID
		}
		pool, targets, ok := snap.Pool(poolID)
		if !ok {
			return Result{}, fmt.Errorf("%w: pool %q not found", ErrRoutingError, poolID)
		}
		rd := routing.Score(pool, targets, req.Preference)
		if len(rd.Candidates) == 0 {
			return Result{}, fmt.Errorf("%w: no active targets in pool %q", ErrRoutingError, poolID)
		}
		routingDecision = &rd
	}

	entry, err := o.appendAudit(ctx, pol, req, decision, routingDecision)
	if err != nil {
		return Result{}, err
	}
	result.AuditEntryID = entry.ID
	result.Routing = routingDecision

	if routingDecision != nil && o.connector != nil {
		selected := selectedTarget(*routingDecision)
		if selected != nil {
			resp, err := o.connector.Invoke(ctx, connector.InvokeRequest{
				Target:  *selected,
				Payload: enriched,
			})
			if err == nil {
				result.Invocation = &resp
			}
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

func selectedTarget(rd routing.RoutingDecision) *routing.RouteTarget {
	for i := range rd.Candidates {
		if rd.Candidates[i].Selected {
			return &rd.Candidates[i].Target
		}
	}
	return nil
}

func (o *Orchestrator) appendAudit(ctx context.Context, pol policy.Policy, req Request, decision policy.Decision, rd *routing.RoutingDecision) (audit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return audit.Entry{}, fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	auditFields := req.Payload
	fields := matchedRuleAuditFields(pol, decision.MatchedRule)

	payload := make(map[string]any, len(auditFields)+2)
	for k, v := range auditFields {
		payload[k] = v
	}
	if rd != nil {
		payload["routing_decision"] = rd
	}

	entry, err := o.auditLog.LogDecision(req.OrgID, decision.MatchedRule, decision.Decision, req.ActorID, payload, fields)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("INTERNAL: audit append failed: %w", err)
	}

	if o.persister != nil {
		if err := o.persister.PersistAuditEntry(ctx, entry); err != nil {
			slog.Error("audit: durable persist failed", "entry_id", entry.ID, "error", err)
		}
	}

	return entry, nil
}

func matchedRuleAuditFields(pol policy.Policy, matchedRuleID string) []string {
	if matchedRuleID == "" {
		return nil
	}
	for _, r := range pol.Rules {
		if r.RuleID == matchedRuleID {
			return r.AuditLogFields
		}
	}
	return nil
}
