package audit

import (
	"github.com/TimMatthis/auzguard/pkg/policy"
)

// ExecuteOverride validates req against rule's override configuration and,
// if authorized, logs the override decision and returns the resulting
// ALLOW_WITH_OVERRIDE / ROUTE_WITH_OVERRIDE response: ROUTE_WITH_OVERRIDE
// when rule.Effect is ROUTE, ALLOW_WITH_OVERRIDE otherwise. rule.Effect is
// not checked against REQUIRE_OVERRIDE. auditFields selects which request
// keys are retained in the audit trail.
func (l *Log) ExecuteOverride(req OverrideRequest, rule policy.Rule, auditFields []string) (OverrideResponse, error) {
	if !rule.Overrides.Allowed {
		return OverrideResponse{}, ErrOverrideNotAllowed
	}
	if len(rule.Overrides.Roles) > 0 && !containsRole(rule.Overrides.Roles, req.ActorRole) {
		return OverrideResponse{}, ErrRoleNotAuthorized
	}
	if rule.Overrides.RequireJustification && req.Justification == "" {
		return OverrideResponse{}, ErrJustificationRequired
	}

	decision := policy.AllowWithOverride
	loggedEffect := policy.Allow
	if rule.Effect == policy.Route {
		decision = policy.RouteWithOverride
		loggedEffect = policy.Route
	}

	payload := make(map[string]any, len(req.Request)+2)
	for k, v := range req.Request {
		payload[k] = v
	}
	payload["override_justification"] = req.Justification
	payload["override_actor_role"] = req.ActorRole

	fields := append(append([]string(nil), auditFields...), "override_justification", "override_actor_role")

	entry, err := l.LogDecision(req.PolicyID, rule.RuleID, loggedEffect, req.ActorID, payload, fields)
	if err != nil {
		return OverrideResponse{}, err
	}

	return OverrideResponse{Decision: string(decision), Entry: entry}, nil
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
