package preprocess

import "strings"

// detector reads the enriched context (already updated by prior detectors in
// the pipeline) and returns derived fields to merge plus an optional insight.
type detector func(ctx map[string]any, text string) (derived map[string]any, insight *Insight)

// pipeline runs left-to-right: each detector sees fields set by the ones
// before it, matching the spec's ordering requirement.
var pipeline = []detector{
	detectHealth,
	detectCreditCard,
	detectSensitiveIDs,
	detectRisky,
	detectProfanity,
	detectCopyrightSummarization,
	detectPIIRedact,
	detectAPP8,
	detectCDR,
	detectAIRisk,
	detectSandbox,
}

var healthTerms = []string{"patient", "diagnosis", "pathology", "prescription", "medical record", "clinician", "mri", "treatment plan"}

func detectHealth(ctx map[string]any, text string) (map[string]any, *Insight) {
	if !containsAnyFold(text, healthTerms) {
		return nil, nil
	}
	derived := map[string]any{}
	if _, ok := ctx["data_class"]; !ok {
		derived["data_class"] = "health_record"
	}
	if _, ok := ctx["personal_information"]; !ok {
		derived["personal_information"] = true
	}
	return derived, &Insight{
		RuleID:     "HEALTH_NO_OFFSHORE",
		Confidence: clampConfidence(0.8),
		Signals:    dedupeSignals(matchedTerms(text, healthTerms)),
		Notes:      "health-related terminology detected in message content",
	}
}

func detectCreditCard(ctx map[string]any, text string) (map[string]any, *Insight) {
	luhn := hasLuhnCard(text)
	piiHasCard := false
	if types, ok := ctx["pii_types"].([]string); ok {
		for _, t := range types {
			if t == "credit_card" {
				piiHasCard = true
			}
		}
	}
	if !luhn && !piiHasCard {
		return nil, nil
	}
	return nil, &Insight{
		RuleID:     "CREDIT_CARD_OFFSHORE_BLOCK",
		Confidence: clampConfidence(0.95),
		Signals:    dedupeSignals([]string{"luhn_valid_card_number"}),
	}
}

func detectSensitiveIDs(ctx map[string]any, text string) (map[string]any, *Insight) {
	var signals []string
	if types, ok := ctx["pii_types"].([]string); ok {
		for _, t := range types {
			switch t {
			case "abn", "tfn", "ssn", "id_number":
				signals = append(signals, t)
			}
		}
	}
	if len(signals) == 0 {
		return nil, nil
	}
	return nil, &Insight{
		RuleID:     "SENSITIVE_IDS_STRICT",
		Confidence: clampConfidence(0.7 + 0.1*float64(len(signals))),
		Signals:    dedupeSignals(signals),
	}
}

func detectRisky(ctx map[string]any, text string) (map[string]any, *Insight) {
	flags, _ := ctx["risk_flags"].([]string)
	var hits []string
	for _, f := range flags {
		switch f {
		case "hate", "violence", "adult", "self_harm":
			hits = append(hits, f)
		}
	}
	if len(hits) == 0 {
		return nil, nil
	}
	return nil, &Insight{
		RuleID:     "RISK_CONTENT_GUARD",
		Confidence: clampConfidence(0.6 + 0.1*float64(len(hits))),
		Signals:    dedupeSignals(hits),
	}
}

func detectProfanity(ctx map[string]any, text string) (map[string]any, *Insight) {
	words, _ := ctx["profanities"].([]string)
	if len(words) == 0 {
		return nil, nil
	}
	// Enrich attaches this strict-block insight plus a warn-internal copy
	// of it for the same signal set; downstream policy authors pick
	// whichever rule_id their rule references.
	return nil, &Insight{
		RuleID:     "PROFANITY_BLOCK_STRICT",
		Confidence: clampConfidence(0.9),
		Signals:    dedupeSignals(words),
		Notes:      "also eligible for PROFANITY_WARN_INTERNAL",
	}
}

var summarizationTerms = []string{"summarize", "summarise", "summary of", "tl;dr"}

func detectCopyrightSummarization(ctx map[string]any, text string) (map[string]any, *Insight) {
	isSummarization := containsAnyFold(text, summarizationTerms)
	possibleCopyright, _ := ctx["possible_copyrighted"].(bool)
	if !isSummarization && !possibleCopyright {
		return nil, nil
	}
	derived := map[string]any{}
	if isSummarization {
		if _, ok := ctx["purpose"]; !ok {
			derived["purpose"] = "summarization"
		}
	}
	return derived, &Insight{
		RuleID:     "COPYRIGHT_SUMMARIZATION_WARN_ROUTE",
		Confidence: clampConfidence(0.5),
		Signals:    dedupeSignals(matchedTerms(text, summarizationTerms)),
	}
}

func detectPIIRedact(ctx map[string]any, text string) (map[string]any, *Insight) {
	containsPII, _ := ctx["contains_pii"].(bool)
	if !containsPII {
		return nil, nil
	}
	types, _ := ctx["pii_types"].([]string)
	return nil, &Insight{
		RuleID:     "PII_REDACT_ROUTE",
		Confidence: clampConfidence(0.85),
		Signals:    dedupeSignals(types),
	}
}

func detectAPP8(ctx map[string]any, text string) (map[string]any, *Insight) {
	personal, _ := ctx["personal_information"].(bool)
	if !personal {
		return nil, nil
	}
	var missing []string
	if _, ok := ctx["destination_region"]; !ok {
		missing = append(missing, "destination_region")
	}
	return nil, &Insight{
		RuleID:        "PRIV_APP8_CROSS_BORDER",
		Confidence:    clampConfidence(0.65),
		MissingFields: missing,
	}
}

var cdrTerms = []string{"open banking", "cdr data", "consumer data right", "transaction history"}

func detectCDR(ctx map[string]any, text string) (map[string]any, *Insight) {
	if !containsAnyFold(text, cdrTerms) {
		return nil, nil
	}
	derived := map[string]any{}
	if _, ok := ctx["data_class"]; !ok {
		derived["data_class"] = "cdr_data"
	}
	return derived, &Insight{
		RuleID:     "CDR_DATA_SOVEREIGNTY",
		Confidence: clampConfidence(0.75),
		Signals:    dedupeSignals(matchedTerms(text, cdrTerms)),
	}
}

var demographicTerms = []string{"race", "ethnicity", "religion", "gender identity", "sexual orientation", "disability status"}

func detectAIRisk(ctx map[string]any, text string) (map[string]any, *Insight) {
	if !containsAnyFold(text, demographicTerms) {
		return nil, nil
	}
	derived := map[string]any{
		"ai_risk_level": "high",
	}
	if _, ok := ctx["data_class"]; !ok {
		derived["data_class"] = "demographic_data"
	}
	return derived, &Insight{
		RuleID:     "AI_RISK_BIAS_AUDIT",
		Confidence: clampConfidence(0.7),
		Signals:    dedupeSignals(matchedTerms(text, demographicTerms)),
	}
}

func detectSandbox(ctx map[string]any, text string) (map[string]any, *Insight) {
	env, _ := ctx["environment"].(string)
	switch env {
	case "sandbox", "testing", "development":
	default:
		return nil, nil
	}
	return nil, &Insight{
		RuleID:     "SANDBOX_NO_PERSIST",
		Confidence: clampConfidence(0.99),
		Signals:    dedupeSignals([]string{"environment:" + env}),
	}
}

func containsAnyFold(text string, terms []string) bool {
	folded := fold.String(text)
	for _, t := range terms {
		if strings.Contains(folded, fold.String(t)) {
			return true
		}
	}
	return false
}

func matchedTerms(text string, terms []string) []string {
	folded := fold.String(text)
	var out []string
	for _, t := range terms {
		if strings.Contains(folded, fold.String(t)) {
			out = append(out, t)
		}
	}
	return out
}
