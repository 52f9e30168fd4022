// Package observability provides gateway-specific instrumentation helpers.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Gateway-specific semantic convention attributes.
var (
	// Policy evaluation attributes
	AttrPolicyID   = attribute.Key("auzguard.policy.id")
	AttrRuleID     = attribute.Key("auzguard.rule.id")
	AttrEffect     = attribute.Key("auzguard.decision.effect")
	AttrLatencyMs  = attribute.Key("auzguard.decision.latency_ms")

	// Routing attributes
	AttrPoolID     = attribute.Key("auzguard.routing.pool_id")
	AttrTargetID   = attribute.Key("auzguard.routing.target_id")
	AttrProvider   = attribute.Key("auzguard.routing.provider")
	AttrScore      = attribute.Key("auzguard.routing.score")

	// Audit attributes
	AttrAuditEntryID = attribute.Key("auzguard.audit.entry_id")
	AttrOrgID        = attribute.Key("auzguard.org_id")

	// Override protocol attributes
	AttrOverrideRole          = attribute.Key("auzguard.override.actor_role")
	AttrOverrideJustification = attribute.Key("auzguard.override.has_justification")
)

// PolicyEvalOperation creates attributes for a policy evaluation span.
func PolicyEvalOperation(policyID, ruleID, effect string, latencyMs float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrPolicyID.String(policyID),
		AttrRuleID.String(ruleID),
		AttrEffect.String(effect),
		AttrLatencyMs.Float64(latencyMs),
	}
}

// RoutingOperation creates attributes for a routing decision span.
func RoutingOperation(poolID, targetID, provider string, score float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrPoolID.String(poolID),
		AttrTargetID.String(targetID),
		AttrProvider.String(provider),
		AttrScore.Float64(score),
	}
}

// AuditAppendOperation creates attributes for an audit append span.
func AuditAppendOperation(orgID, entryID, ruleID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrOrgID.String(orgID),
		AttrAuditEntryID.String(entryID),
		AttrRuleID.String(ruleID),
	}
}

// OverrideOperation creates attributes for an override execution span.
func OverrideOperation(role string, hasJustification bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrOverrideRole.String(role),
		AttrOverrideJustification.Bool(hasJustification),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus sets the span status based on error.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
