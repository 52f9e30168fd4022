package policy

import (
	"testing"

	"github.com/TimMatthis/auzguard/pkg/preprocess"
)

func healthPolicy() Policy {
	return Policy{
		PolicyID:     "pol-health",
		Version:      "v1.0.0",
		Title:        "Health Data Policy",
		Jurisdiction: "AU",
		EvaluationStrategy: EvaluationStrategy{
			Order:              "ASC_PRIORITY",
			ConflictResolution: "FIRST_MATCH",
			DefaultEffect:      Allow,
		},
		Rules: []Rule{
			{
				RuleID:    "HEALTH_NO_OFFSHORE",
				Title:     "Block offshore health data",
				Condition: `data_class in ['health_record'] && destination_region != 'AU'`,
				Effect:    Block,
				Priority:  10,
				Enabled:   true,
			},
		},
	}
}

func TestEngineS1HealthCrossBorderBlock(t *testing.T) {
	payload := map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "content": "Patient requires MRI results sent overseas."},
		},
		"destination_region": "US",
	}

	ctx := preprocess.Enrich(payload)
	if dc, _ := ctx["data_class"].(string); dc != "health_record" {
		t.Fatalf("expected data_class=health_record, got %v", ctx["data_class"])
	}

	engine := NewEngine()
	decision := engine.Evaluate(healthPolicy(), ctx)

	if decision.Decision != Block {
		t.Fatalf("expected BLOCK, got %s", decision.Decision)
	}
	if decision.MatchedRule != "HEALTH_NO_OFFSHORE" {
		t.Fatalf("expected matched_rule=HEALTH_NO_OFFSHORE, got %s", decision.MatchedRule)
	}

	var found bool
	for _, ins := range decision.RuleInsights {
		if ins.RuleID == "HEALTH_NO_OFFSHORE" {
			found = true
			if !ins.Matched {
				t.Fatalf("expected HEALTH_NO_OFFSHORE insight matched=true")
			}
		}
	}
	if !found {
		t.Fatalf("expected a HEALTH_NO_OFFSHORE insight, got %+v", decision.RuleInsights)
	}
}

func cdrPolicy() Policy {
	return Policy{
		PolicyID:     "pol-cdr",
		Version:      "v1.0.0",
		Title:        "CDR Policy",
		Jurisdiction: "AU",
		EvaluationStrategy: EvaluationStrategy{
			Order:              "ASC_PRIORITY",
			ConflictResolution: "FIRST_MATCH",
			DefaultEffect:      Allow,
		},
		Rules: []Rule{
			{
				RuleID:    "CDR_DATA_SOVEREIGNTY",
				Title:     "CDR requires override",
				Condition: `data_class == 'cdr_data'`,
				Effect:    RequireOverride,
				Priority:  20,
				Enabled:   true,
				Overrides: Overrides{
					Allowed:              true,
					Roles:                []string{"compliance", "admin"},
					RequireJustification: true,
				},
			},
		},
	}
}

func TestEngineS2CDRSovereignty(t *testing.T) {
	payload := map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "content": "need open banking transaction history please"},
		},
	}
	ctx := preprocess.Enrich(payload)

	engine := NewEngine()
	decision := engine.Evaluate(cdrPolicy(), ctx)

	if decision.Decision != RequireOverride {
		t.Fatalf("expected REQUIRE_OVERRIDE, got %s", decision.Decision)
	}
	if decision.OverridesRequired == nil {
		t.Fatalf("expected overrides_required to be set")
	}
	want := []string{"compliance", "admin"}
	got := decision.OverridesRequired.Roles
	if len(got) != len(want) {
		t.Fatalf("expected roles %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected roles %v, got %v", want, got)
		}
	}
}

func TestEngineDefaultFallback(t *testing.T) {
	p := healthPolicy()
	engine := NewEngine()
	decision := engine.Evaluate(p, map[string]any{"data_class": "other"})

	if decision.Decision != Allow {
		t.Fatalf("expected default effect ALLOW, got %s", decision.Decision)
	}
	if decision.MatchedRule != "" {
		t.Fatalf("expected no matched rule, got %s", decision.MatchedRule)
	}
}

func TestEnginePriorityOrderingAndDisabled(t *testing.T) {
	p := Policy{
		EvaluationStrategy: EvaluationStrategy{DefaultEffect: Allow},
		Rules: []Rule{
			{RuleID: "late", Condition: "true", Effect: Block, Priority: 50, Enabled: true},
			{RuleID: "disabled-first", Condition: "true", Effect: Block, Priority: 1, Enabled: false},
			{RuleID: "early", Condition: "true", Effect: Route, Priority: 5, Enabled: true},
		},
	}
	engine := NewEngine()
	decision := engine.Evaluate(p, map[string]any{})

	if decision.MatchedRule != "early" {
		t.Fatalf("expected matched_rule=early, got %s", decision.MatchedRule)
	}
	if len(decision.Trace) != 2 {
		t.Fatalf("expected trace to stop after first match (2 entries: disabled, early), got %d: %+v", len(decision.Trace), decision.Trace)
	}
	if !decision.Trace[0].Skipped || decision.Trace[0].RuleID != "disabled-first" {
		t.Fatalf("expected first trace entry to be the skipped disabled rule, got %+v", decision.Trace[0])
	}
}

func TestEngineResidencyResolution(t *testing.T) {
	p := Policy{
		EvaluationStrategy:          EvaluationStrategy{DefaultEffect: Allow},
		ResidencyRequirementDefault: ResidencyAUOnshore,
		Rules: []Rule{
			{RuleID: "r1", Condition: "true", Effect: Allow, Priority: 1, Enabled: true, ResidencyRequirement: ResidencyAULocal},
		},
	}
	engine := NewEngine()
	decision := engine.Evaluate(p, map[string]any{})
	if decision.ResidencyRequirement != ResidencyAULocal {
		t.Fatalf("expected rule residency to win, got %s", decision.ResidencyRequirement)
	}

	p.ResidencyOverride = ResidencyOnPremise
	decision = engine.Evaluate(p, map[string]any{})
	if decision.ResidencyRequirement != ResidencyOnPremise {
		t.Fatalf("expected policy override to win, got %s", decision.ResidencyRequirement)
	}
}

func TestValidateRejectsDuplicateRuleIDAndEmptyCondition(t *testing.T) {
	p := Policy{
		PolicyID:     "pol-bad",
		Version:      "v1.0.0",
		Title:        "Bad Policy",
		Jurisdiction: "AU",
		EvaluationStrategy: EvaluationStrategy{
			Order:              "ASC_PRIORITY",
			ConflictResolution: "FIRST_MATCH",
			DefaultEffect:      Allow,
		},
		Rules: []Rule{
			{RuleID: "dup", Title: "a", Condition: "true", Effect: Allow, Priority: 1},
			{RuleID: "dup", Title: "b", Condition: "", Effect: Allow, Priority: 2},
		},
	}
	valid, errs := Validate(p)
	if valid {
		t.Fatalf("expected invalid policy")
	}
	if len(errs) == 0 {
		t.Fatalf("expected validation errors")
	}
}

func TestValidateAcceptsWellFormedPolicy(t *testing.T) {
	valid, errs := Validate(healthPolicy())
	if !valid {
		t.Fatalf("expected valid policy, got errors: %+v", errs)
	}
}

func TestValidateRejectsMalformedSemanticVersion(t *testing.T) {
	p := healthPolicy()
	p.Version = "v01.2.3"
	valid, errs := Validate(p)
	if valid {
		t.Fatalf("expected invalid policy for malformed version")
	}
	found := false
	for _, e := range errs {
		if e.Field == "version" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a version validation error, got: %+v", errs)
	}
}
