// Package policy loads, validates, and evaluates policies against an
// enriched request context, producing a decision, the matched rule (if
// any), and a full evaluation trace.
package policy

// Effect is the decision outcome for a request.
type Effect string

const (
	Allow           Effect = "ALLOW"
	Block           Effect = "BLOCK"
	Route           Effect = "ROUTE"
	RequireOverride Effect = "REQUIRE_OVERRIDE"
	WarnRoute       Effect = "WARN_ROUTE"

	AllowWithOverride Effect = "ALLOW_WITH_OVERRIDE"
	RouteWithOverride Effect = "ROUTE_WITH_OVERRIDE"
)

// Severity ranks how serious a rule's match is.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Category classifies the compliance domain a rule addresses.
type Category string

const (
	CategoryPrivacy     Category = "PRIVACY"
	CategoryHealth      Category = "HEALTH"
	CategoryAIRisk      Category = "AI_RISK"
	CategoryCDR         Category = "CDR"
	CategoryAntiDiscrim Category = "ANTI_DISCRIM"
	CategoryTelecom     Category = "TELECOM"
	CategoryCopyright   Category = "COPYRIGHT"
	CategoryExport      Category = "EXPORT"
	CategoryConsumer    Category = "CONSUMER"
)

// ResidencyRequirement constrains where a request's data or model
// invocation may be handled.
type ResidencyRequirement string

const (
	ResidencyAuto       ResidencyRequirement = "AUTO"
	ResidencyAUOnshore  ResidencyRequirement = "AU_ONSHORE"
	ResidencyAULocal    ResidencyRequirement = "AU_LOCAL"
	ResidencyOnPremise  ResidencyRequirement = "ON_PREMISE"
)

// Scope lists the data classes, domains, destinations, models and org IDs a
// rule is scoped to. It is stored and serialised with the rule, but
// Engine.Evaluate does not read it: a rule's condition alone decides
// whether it matches.
type Scope struct {
	DataClass    []string `json:"data_class,omitempty"`
	Domains      []string `json:"domains,omitempty"`
	Destinations []string `json:"destinations,omitempty"`
	Models       []string `json:"models,omitempty"`
	OrgIDs       []string `json:"org_ids,omitempty"`
}

// Overrides describes who, if anyone, may bypass a REQUIRE_OVERRIDE
// decision produced by this rule.
type Overrides struct {
	Allowed              bool     `json:"allowed"`
	Roles                []string `json:"roles,omitempty"`
	RequireJustification bool     `json:"require_justification"`
}

// RuleTest is a named fixture a rule's author can attach for regression
// coverage; run via the /rules/:rid/test endpoint.
type RuleTest struct {
	Name    string         `json:"name"`
	Request map[string]any `json:"request"`
	Expect  Effect         `json:"expect"`
}

// RuleMetadata is free-form provenance attached to a rule.
type RuleMetadata struct {
	Owner        string `json:"owner,omitempty"`
	LastReviewed string `json:"last_reviewed,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// Rule is a single named condition producing an effect when matched.
type Rule struct {
	RuleID      string   `json:"rule_id"`
	Version     string   `json:"version,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Category    Category `json:"category,omitempty"`
	Jurisdiction string  `json:"jurisdiction,omitempty"`
	LegalBasis  []string `json:"legal_basis,omitempty"`

	AppliesTo *Scope `json:"applies_to,omitempty"`

	Condition       string   `json:"condition"`
	Effect          Effect   `json:"effect"`
	RouteTo         string   `json:"route_to,omitempty"`
	Obligations     []string `json:"obligations,omitempty"`
	AuditLogFields  []string `json:"audit_log_fields,omitempty"`

	Overrides Overrides `json:"overrides"`

	Priority int      `json:"priority"`
	Severity Severity `json:"severity,omitempty"`
	Enabled  bool     `json:"enabled"`

	ResidencyRequirement ResidencyRequirement `json:"residency_requirement,omitempty"`

	Tests    []RuleTest    `json:"tests,omitempty"`
	Metadata *RuleMetadata `json:"metadata,omitempty"`
}

// EvaluationStrategy configures how a policy's rules are ordered and how
// ties and no-matches resolve.
type EvaluationStrategy struct {
	Order              string `json:"order"`
	ConflictResolution string `json:"conflict_resolution"`
	DefaultEffect      Effect `json:"default_effect"`
}

// Policy is an ordered, versioned set of rules plus an evaluation
// strategy.
type Policy struct {
	PolicyID     string   `json:"policy_id"`
	Version      string   `json:"version"`
	Title        string   `json:"title"`
	Jurisdiction string   `json:"jurisdiction"`

	EvaluationStrategy EvaluationStrategy `json:"evaluation_strategy"`
	Rules              []Rule             `json:"rules"`

	ResidencyRequirementDefault ResidencyRequirement `json:"residency_requirement_default,omitempty"`
	ResidencyOverride           ResidencyRequirement `json:"residency_override,omitempty"`
}

// TraceStep records the outcome of evaluating (or skipping) a single rule.
type TraceStep struct {
	RuleID  string `json:"rule_id"`
	Matched bool   `json:"matched"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// OverridesRequired is attached to a REQUIRE_OVERRIDE decision so the
// caller knows who can unblock it.
type OverridesRequired struct {
	Roles                []string `json:"roles,omitempty"`
	RequireJustification bool     `json:"require_justification"`
}

// RuleInsightResult is a rule insight as surfaced in a decision result,
// with Matched set true only for the insight whose RuleID equals the
// decision's MatchedRule.
type RuleInsightResult struct {
	RuleID          string         `json:"rule_id"`
	Confidence      float64        `json:"confidence"`
	Signals         []string       `json:"signals,omitempty"`
	SuggestedFields map[string]any `json:"suggested_fields,omitempty"`
	MissingFields   []string       `json:"missing_fields,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	Matched         bool           `json:"matched"`
}

// Decision is the full result of evaluating a policy against a context.
type Decision struct {
	Decision          Effect               `json:"decision"`
	MatchedRule       string               `json:"matched_rule,omitempty"`
	Trace             []TraceStep          `json:"trace"`
	ObligationsApplied []string            `json:"obligations_applied"`
	RouteTo           string               `json:"route_to,omitempty"`
	ResidencyRequirement ResidencyRequirement `json:"residency_requirement"`
	OverridesRequired *OverridesRequired    `json:"overrides_required,omitempty"`
	RuleInsights      []RuleInsightResult   `json:"rule_insights,omitempty"`
}
