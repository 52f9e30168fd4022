package routing

import (
	"fmt"
	"sort"
	"strings"
)

// strengthRank gives an ordering to Strength for rank-difference scoring.
func strengthRank(s Strength) int {
	switch s {
	case StrengthStrong:
		return 3
	case StrengthStandard:
		return 2
	case StrengthLite:
		return 1
	default:
		return 0
	}
}

// derivedStrength returns profile.Quality.Strength if set, else derives it
// from tags.cost_tier.
func derivedStrength(profile *ModelProfile) Strength {
	if profile.Quality.Strength != "" {
		return profile.Quality.Strength
	}
	tier, _ := profile.Tags["cost_tier"].(string)
	switch strings.ToLower(tier) {
	case "premium", "quality":
		return StrengthStrong
	case "balanced", "standard":
		return StrengthStandard
	case "economy", "lite":
		return StrengthLite
	default:
		return ""
	}
}

// Score ranks pool's active targets against an optional preference
// structure and returns them sorted descending by score, with the top
// candidate marked selected. Ties break on original target order.
func Score(pool ModelPool, targets []RouteTarget, pref *RoutingPreference) RoutingDecision {
	var active []RouteTarget
	for _, t := range targets {
		if t.IsActive {
			active = append(active, t)
		}
	}

	candidates := make([]Candidate, len(active))
	for i, t := range active {
		candidates[i] = scoreTarget(t, pref)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	for i := range candidates {
		candidates[i].Selected = i == 0
	}

	return RoutingDecision{
		PoolID:          pool.PoolID,
		PoolRegion:      pool.Region,
		PoolDescription: pool.Description,
		Candidates:      candidates,
	}
}

func scoreTarget(t RouteTarget, pref *RoutingPreference) Candidate {
	score := t.Weight
	var reasons []string
	add := func(delta float64, reason string) {
		score += delta
		reasons = append(reasons, fmt.Sprintf("%+.2f %s", delta, reason))
	}

	profile := t.Profile
	if profile != nil {
		add(1000/maxf(profile.Performance.AvgLatencyMS, 1), "latency boost")
		add(profile.Performance.Availability*10, "availability")

		if pref != nil && len(pref.ComplianceTags) > 0 {
			hits := intersectCount(pref.ComplianceTags, profile.Tags)
			if hits > 0 {
				add(25*float64(hits), "compliance tag overlap")
			}
		}

		scoreResidency(profile, t.Region, pref, add)
		scoreOnPrem(profile, pref, add)
		scoreInfoTypes(profile, pref, add)
		scoreContextWindow(profile, pref, add)
		scoreModelStrength(profile, pref, add)
		scoreLatencyBudget(profile, pref, add)
		scoreCostCap(profile, pref, add)
		scoreQuality(profile, pref, add)
		scoreOutputTokens(profile, pref, add)
		scoreFeatureFlags(profile, pref, add)
	} else if pref != nil && pref.RequiresOnPrem {
		add(-6000, "on-prem required but no profile")
	}

	if pref != nil {
		if pref.PreferredRegion != "" && pref.PreferredRegion == t.Region {
			add(50, "preferred region match")
		}
		if pref.PreferredProvider != "" && pref.PreferredProvider == t.Provider {
			add(25, "preferred provider match")
		}
		if pref.MinimizeLatency && profile != nil {
			add(500/maxf(profile.Performance.P95LatencyMS, 1), "minimize latency")
		}
	}

	return Candidate{Target: t, Score: score, Reasons: reasons}
}

func deployment(profile *ModelProfile) string {
	d, _ := profile.Tags["deployment"].(string)
	return strings.ToLower(d)
}

func isOnPremDeployment(d string) bool {
	switch d {
	case "onprem", "onsite", "local":
		return true
	default:
		return false
	}
}

func scoreResidency(profile *ModelProfile, region string, pref *RoutingPreference, add func(float64, string)) {
	if pref == nil {
		return
	}
	switch pref.RequiredDataResidency {
	case "":
		if len(pref.PreferredDataResidency) > 0 && contains(pref.PreferredDataResidency, profile.Compliance.DataResidency) {
			add(75, "preferred residency match")
		}
	case "AU_LOCAL":
		d := deployment(profile)
		if profile.Compliance.DataResidency == "AU" && (d == "local" || d == "onsite" || d == "onprem") {
			add(200, "residency match (AU_LOCAL)")
		} else {
			add(-5000, "residency mismatch (AU_LOCAL)")
		}
	default:
		if profile.Compliance.DataResidency == pref.RequiredDataResidency {
			add(200, "residency match")
		} else {
			add(-5000, "residency mismatch")
		}
	}
}

func scoreOnPrem(profile *ModelProfile, pref *RoutingPreference, add func(float64, string)) {
	if pref == nil || !pref.RequiresOnPrem {
		return
	}
	d := deployment(profile)
	if isOnPremDeployment(d) {
		add(250, "on-prem match")
	} else {
		add(-6000, "on-prem required but not deployed on-prem")
	}
}

func scoreInfoTypes(profile *ModelProfile, pref *RoutingPreference, add func(float64, string)) {
	if pref == nil || len(pref.InfoTypes) == 0 {
		return
	}
	union := map[string]bool{}
	for _, c := range profile.SupportedDataClasses {
		union[c] = true
	}
	if infoTypes, ok := profile.Tags["info_types"].([]string); ok {
		for _, c := range infoTypes {
			union[c] = true
		}
	} else if infoTypesAny, ok := profile.Tags["info_types"].([]any); ok {
		for _, c := range infoTypesAny {
			if s, ok := c.(string); ok {
				union[s] = true
			}
		}
	}

	hits := 0
	for _, it := range pref.InfoTypes {
		if union[it] {
			hits++
		}
	}
	if hits > 0 {
		add(20*float64(hits), "info type alignment")
	} else {
		add(-40, "no info type overlap")
	}
}

func scoreContextWindow(profile *ModelProfile, pref *RoutingPreference, add func(float64, string)) {
	if pref == nil || pref.RequiredContextWindowTokens <= 0 {
		return
	}
	cap := profile.Limits.ContextWindowTokens
	if cap == 0 {
		cap = 8192
	}
	required := pref.RequiredContextWindowTokens
	if cap < required {
		add(-1000, "context window too small")
		return
	}
	add(minf(100, float64(cap-required)/100), "context window headroom")
}

func scoreModelStrength(profile *ModelProfile, pref *RoutingPreference, add func(float64, string)) {
	if pref == nil || pref.ModelStrength == "" {
		return
	}
	actual := derivedStrength(profile)
	if actual == pref.ModelStrength {
		add(60, "model strength exact match")
		return
	}
	diff := strengthRank(actual) - strengthRank(pref.ModelStrength)
	add(10*float64(diff), "model strength rank difference")
}

func scoreLatencyBudget(profile *ModelProfile, pref *RoutingPreference, add func(float64, string)) {
	if pref == nil || pref.LatencyBudgetMS <= 0 {
		return
	}
	p95 := profile.Performance.P95LatencyMS
	if p95 > pref.LatencyBudgetMS {
		over := p95 - pref.LatencyBudgetMS
		add(-minf(800, over/2), "over latency budget")
		return
	}
	under := pref.LatencyBudgetMS - p95
	add(minf(200, under/3), "under latency budget")
}

func scoreCostCap(profile *ModelProfile, pref *RoutingPreference, add func(float64, string)) {
	if pref == nil || pref.MaxCostPer1k == nil {
		return
	}
	price := profile.Cost.Per1kTokens
	cap := *pref.MaxCostPer1k
	if price > cap {
		add(-1200, "over cost cap")
		return
	}
	add(minf(120, (cap-price)*10), "under cost cap")
}

func scoreQuality(profile *ModelProfile, pref *RoutingPreference, add func(float64, string)) {
	if pref == nil || pref.MinQualityScore == nil {
		return
	}
	min := *pref.MinQualityScore
	var q float64
	if profile.Quality.Score != nil {
		q = *profile.Quality.Score
	}
	if q < min {
		add(-600, "below min quality score")
		return
	}
	add(minf(150, (q-min)*20), "above min quality score")
}

func scoreOutputTokens(profile *ModelProfile, pref *RoutingPreference, add func(float64, string)) {
	if pref == nil || pref.RequiredOutputTokens <= 0 {
		return
	}
	if profile.Limits.MaxOutputTokens < pref.RequiredOutputTokens {
		add(-1000, "insufficient max output tokens")
		return
	}
	add(40, "sufficient max output tokens")
}

func scoreFeatureFlags(profile *ModelProfile, pref *RoutingPreference, add func(float64, string)) {
	if pref == nil {
		return
	}
	check := func(required bool, feature string, penalty float64) {
		if !required {
			return
		}
		if hasCapability(profile, feature) {
			return
		}
		add(-penalty, feature+" missing")
	}
	check(pref.RequiresJSONMode, "json_mode", 800)
	check(pref.RequiresFunctionCalling, "function_calling", 800)
	check(pref.RequiresStreaming, "streaming", 400)
	check(pref.RequiresVision, "vision", 900)
}

// hasCapability reports whether feature is present either as a
// case-insensitive substring of an entry in capabilities[] or as a truthy
// tags[feature] boolean.
func hasCapability(profile *ModelProfile, feature string) bool {
	foldedFeature := strings.ToLower(feature)
	for _, cap := range profile.Capabilities {
		if strings.Contains(strings.ToLower(cap), foldedFeature) {
			return true
		}
	}
	if v, ok := profile.Tags[feature]; ok {
		if b, ok := v.(bool); ok && b {
			return true
		}
	}
	return false
}

func intersectCount(tags []string, profileTags map[string]any) int {
	count := 0
	for _, t := range tags {
		if v, ok := profileTags[t]; ok {
			if b, ok := v.(bool); ok && !b {
				continue
			}
			count++
		}
	}
	return count
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
