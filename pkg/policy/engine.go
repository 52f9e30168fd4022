package policy

import (
	"sort"

	"github.com/TimMatthis/auzguard/pkg/expr"
	"github.com/TimMatthis/auzguard/pkg/preprocess"
)

// Engine evaluates policies against enriched contexts using a shared
// expression evaluator (and its AST cache) across every call.
type Engine struct {
	evaluator *expr.Evaluator
}

// NewEngine constructs an Engine backed by a fresh expression evaluator.
func NewEngine() *Engine {
	return &Engine{evaluator: expr.New()}
}

// Evaluate orders policy's rules ascending by priority (stable on ties),
// skips disabled rules, and returns the first match, or the policy's
// default effect if none match. The trace records every rule inspected,
// in evaluation order, terminating at the first match.
func (e *Engine) Evaluate(policy Policy, ctx map[string]any) Decision {
	ordered := make([]Rule, len(policy.Rules))
	copy(ordered, policy.Rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	var trace []TraceStep
	var matched *Rule

	for i := range ordered {
		rule := ordered[i]
		if !rule.Enabled {
			trace = append(trace, TraceStep{RuleID: rule.RuleID, Matched: false, Skipped: true, Reason: "Rule disabled"})
			continue
		}

		result := e.evaluator.Evaluate(rule.Condition, ctx)
		trace = append(trace, TraceStep{RuleID: rule.RuleID, Matched: result.Matched, Reason: result.Reason})

		if result.Matched {
			matched = &ordered[i]
			break
		}
	}

	decision := Decision{
		Trace:              trace,
		ObligationsApplied: []string{},
	}

	if matched == nil {
		decision.Decision = policy.EvaluationStrategy.DefaultEffect
		decision.ResidencyRequirement = resolveResidency(policy, nil)
		return decision
	}

	decision.Decision = matched.Effect
	decision.MatchedRule = matched.RuleID
	decision.RouteTo = matched.RouteTo
	if matched.Obligations != nil {
		decision.ObligationsApplied = matched.Obligations
	}
	decision.ResidencyRequirement = resolveResidency(policy, matched)

	if matched.Effect == RequireOverride {
		decision.OverridesRequired = &OverridesRequired{
			Roles:                matched.Overrides.Roles,
			RequireJustification: matched.Overrides.RequireJustification,
		}
	}

	decision.RuleInsights = extractRuleInsights(ctx, matched.RuleID)

	return decision
}

// resolveResidency implements the chain: policy.residency_override (if
// set and not AUTO) -> matched rule's residency_requirement (if set and
// not AUTO) -> policy.residency_requirement_default -> AUTO.
func resolveResidency(policy Policy, matched *Rule) ResidencyRequirement {
	if policy.ResidencyOverride != "" && policy.ResidencyOverride != ResidencyAuto {
		return policy.ResidencyOverride
	}
	if matched != nil && matched.ResidencyRequirement != "" && matched.ResidencyRequirement != ResidencyAuto {
		return matched.ResidencyRequirement
	}
	if policy.ResidencyRequirementDefault != "" {
		return policy.ResidencyRequirementDefault
	}
	return ResidencyAuto
}

// extractRuleInsights reads __rule_insights out of ctx (as attached by
// pkg/preprocess.Enrich) and marks the insight whose rule_id equals
// matchedRuleID.
func extractRuleInsights(ctx map[string]any, matchedRuleID string) []RuleInsightResult {
	raw, ok := ctx[preprocess.RuleInsightsKey]
	if !ok {
		return nil
	}
	insights, ok := raw.([]preprocess.Insight)
	if !ok {
		return nil
	}
	out := make([]RuleInsightResult, 0, len(insights))
	for _, ins := range insights {
		out = append(out, RuleInsightResult{
			RuleID:          ins.RuleID,
			Confidence:      ins.Confidence,
			Signals:         ins.Signals,
			SuggestedFields: ins.SuggestedFields,
			MissingFields:   ins.MissingFields,
			Notes:           ins.Notes,
			Matched:         ins.RuleID == matchedRuleID,
		})
	}
	return out
}
