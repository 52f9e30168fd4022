// Package routing ranks candidate model-pool targets against caller
// preferences using a multi-dimensional additive scoring function.
package routing

// Health describes the out-of-band health check result for a pool.
type Health struct {
	Status    string `json:"status"` // healthy | degraded | unhealthy
	LastCheck string `json:"last_check,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// ModelPool groups target endpoints sharing region/tags/health.
type ModelPool struct {
	PoolID      string            `json:"pool_id"`
	Region      string            `json:"region,omitempty"`
	Description string            `json:"description,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Health      Health            `json:"health"`
}

// Strength ranks a model's capability tier.
type Strength string

const (
	StrengthLite     Strength = "lite"
	StrengthStandard Strength = "standard"
	StrengthStrong   Strength = "strong"
)

// Compliance is the compliance-relevant metadata of a target's profile.
type Compliance struct {
	DataResidency  string   `json:"data_residency,omitempty"`
	Certifications []string `json:"certifications,omitempty"`
}

// Performance is the observed performance metadata of a target's profile.
type Performance struct {
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	P95LatencyMS float64 `json:"p95_latency_ms"`
	Availability float64 `json:"availability"` // in [0,1]
	ThroughputTPS float64 `json:"throughput_tps"`
}

// Cost is the per-token pricing metadata of a target's profile.
type Cost struct {
	Currency  string  `json:"currency,omitempty"`
	Per1kTokens float64 `json:"per_1k_tokens"`
}

// Limits bound a target's context window and token counts.
type Limits struct {
	ContextWindowTokens int `json:"context_window_tokens,omitempty"`
	MaxInputTokens      int `json:"max_input_tokens,omitempty"`
	MaxOutputTokens     int `json:"max_output_tokens,omitempty"`
}

// Quality is the model-strength metadata of a target's profile.
type Quality struct {
	Strength Strength `json:"strength,omitempty"`
	Score    *float64 `json:"score,omitempty"`
}

// ModelProfile is the structured performance/compliance/cost/limits
// metadata attached to a route target.
type ModelProfile struct {
	Capabilities        []string          `json:"capabilities,omitempty"`
	SupportedDataClasses []string         `json:"supported_data_classes,omitempty"`
	Compliance           Compliance       `json:"compliance"`
	Performance          Performance      `json:"performance"`
	Cost                 Cost             `json:"cost"`
	Limits               Limits           `json:"limits"`
	Quality              Quality          `json:"quality"`
	Tags                 map[string]any   `json:"tags,omitempty"`
}

// RouteTarget is a single model endpoint belonging to a pool.
type RouteTarget struct {
	ID       string        `json:"id"`
	PoolID   string        `json:"pool_id"`
	Provider string        `json:"provider"`
	Endpoint string        `json:"endpoint"`
	Weight   float64       `json:"weight"`
	Region   string        `json:"region,omitempty"`
	IsActive bool          `json:"is_active"`
	Profile  *ModelProfile `json:"profile,omitempty"`
}

// RoutingPreference is the optional caller-supplied preference structure
// used to score candidates.
type RoutingPreference struct {
	PreferredRegion   string   `json:"preferred_region,omitempty"`
	PreferredProvider string   `json:"preferred_provider,omitempty"`
	MinimizeLatency   bool     `json:"minimize_latency,omitempty"`
	ComplianceTags    []string `json:"compliance_tags,omitempty"`
	InfoTypes         []string `json:"info_types,omitempty"`

	RequiredContextWindowTokens int      `json:"required_context_window_tokens,omitempty"`
	ModelStrength               Strength `json:"model_strength,omitempty"`

	RequiredDataResidency  string `json:"required_data_residency,omitempty"`
	PreferredDataResidency []string `json:"preferred_data_residency,omitempty"`

	LatencyBudgetMS    float64  `json:"latency_budget_ms,omitempty"`
	MaxCostPer1k       *float64 `json:"max_cost_per_1k,omitempty"`
	MinQualityScore    *float64 `json:"min_quality_score,omitempty"`
	RequiredOutputTokens int    `json:"required_output_tokens,omitempty"`

	RequiresJSONMode       bool `json:"requires_json_mode,omitempty"`
	RequiresFunctionCalling bool `json:"requires_function_calling,omitempty"`
	RequiresStreaming      bool `json:"requires_streaming,omitempty"`
	RequiresVision         bool `json:"requires_vision,omitempty"`
	RequiresOnPrem         bool `json:"requires_on_prem,omitempty"`
}

// Candidate is a scored target, with Reasons explaining each additive
// contribution for observability.
type Candidate struct {
	Target   RouteTarget `json:"target"`
	Score    float64     `json:"score"`
	Reasons  []string    `json:"reasons"`
	Selected bool        `json:"selected"`
}

// RoutingDecision is the ranked result for a pool.
type RoutingDecision struct {
	PoolID          string      `json:"pool_id"`
	PoolRegion      string      `json:"pool_region,omitempty"`
	PoolDescription string      `json:"pool_description,omitempty"`
	Candidates      []Candidate `json:"candidates"`
}
