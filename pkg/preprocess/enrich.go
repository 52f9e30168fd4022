package preprocess

// Enrich runs content inspection and the rule-detector pipeline over payload
// and returns a new map (payload is never mutated in place) with derived
// fields and a __rule_insights entry merged in.
//
// Enrich is idempotent: re-running it over its own output yields the same
// result, since every detector only ever sets a field when absent and the
// insight list is recomputed wholesale rather than appended to.
func Enrich(payload map[string]any) map[string]any {
	ctx := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		if k == RuleInsightsKey {
			continue
		}
		ctx[k] = v
	}

	text := extractText(payload)
	inspection := Inspect(text)

	ctx["contains_pii"] = inspection.ContainsPII
	if inspection.ContainsPII {
		if _, exists := ctx["personal_information"]; !exists {
			ctx["personal_information"] = true
		}
	}
	if len(inspection.PIITypes) > 0 {
		ctx["pii_types"] = inspection.PIITypes
	}
	if len(inspection.Profanities) > 0 {
		ctx["profanities"] = inspection.Profanities
	}
	if len(inspection.RiskFlags) > 0 {
		ctx["risk_flags"] = inspection.RiskFlags
	}
	ctx["possible_copyrighted"] = inspection.PossibleCopyright

	var insights []Insight
	for _, d := range pipeline {
		derived, insight := d(ctx, text)
		for k, v := range derived {
			if _, exists := ctx[k]; !exists {
				ctx[k] = v
			}
		}
		if insight != nil {
			insight.Matched = true
			insights = append(insights, *insight)
			if insight.RuleID == "PROFANITY_BLOCK_STRICT" {
				warn := *insight
				warn.RuleID = "PROFANITY_WARN_INTERNAL"
				warn.Notes = "also eligible for PROFANITY_BLOCK_STRICT"
				insights = append(insights, warn)
			}
		}
	}

	if len(insights) > 0 {
		ctx[RuleInsightsKey] = insights
	}
	return ctx
}
