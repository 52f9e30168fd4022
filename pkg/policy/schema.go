package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// policySchemaJSON captures the essential-fields schema from the policy
// validation surface: policy_id/title/jurisdiction non-empty, version
// matching v\d+\.\d+\.\d+, evaluation_strategy with its three required
// subfields, and rules as a (possibly empty) array of rule objects.
const policySchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["policy_id", "version", "title", "jurisdiction", "evaluation_strategy", "rules"],
  "properties": {
    "policy_id": {"type": "string", "minLength": 1},
    "version": {"type": "string", "pattern": "^v\\d+\\.\\d+\\.\\d+$"},
    "title": {"type": "string", "minLength": 1},
    "jurisdiction": {"type": "string", "minLength": 1},
    "evaluation_strategy": {
      "type": "object",
      "required": ["order", "conflict_resolution", "default_effect"],
      "properties": {
        "order": {"type": "string"},
        "conflict_resolution": {"type": "string"},
        "default_effect": {"type": "string"}
      }
    },
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["rule_id", "title", "condition", "effect", "priority"],
        "properties": {
          "rule_id": {"type": "string", "minLength": 1},
          "title": {"type": "string", "minLength": 1},
          "condition": {"type": "string", "minLength": 1},
          "effect": {"type": "string"},
          "priority": {"type": "integer", "minimum": 0}
        }
      }
    }
  }
}`

var compiledPolicySchema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const schemaURL = "https://auzguard.schemas.local/policy.schema.json"
	if err := c.AddResource(schemaURL, strings.NewReader(policySchemaJSON)); err != nil {
		panic(fmt.Sprintf("policy: embedded schema invalid: %v", err))
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("policy: embedded schema failed to compile: %v", err))
	}
	compiledPolicySchema = compiled
}

// ValidationError pairs a JSON pointer-ish field path with a message.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validate checks p against the policy schema and the invariants the
// schema cannot express: unique rule_id within the policy, and no rule
// with an empty condition.
func Validate(p Policy) (bool, []ValidationError) {
	var errs []ValidationError

	raw, err := json.Marshal(p)
	if err != nil {
		return false, []ValidationError{{Field: "$", Message: err.Error()}}
	}
	var asMap any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return false, []ValidationError{{Field: "$", Message: err.Error()}}
	}

	if err := compiledPolicySchema.Validate(asMap); err != nil {
		errs = append(errs, flattenSchemaError(err)...)
	}

	// The schema's regex only checks vN.N.N shape; parse it as a strict
	// semantic version so malformed values such as "v01.2.3" (leading
	// zeros) that happen to match the pattern are still rejected.
	if p.Version != "" {
		if _, err := semver.StrictNewVersion(strings.TrimPrefix(p.Version, "v")); err != nil {
			errs = append(errs, ValidationError{Field: "version", Message: "not a valid semantic version: " + err.Error()})
		}
	}

	seen := make(map[string]bool, len(p.Rules))
	for i, rule := range p.Rules {
		field := fmt.Sprintf("rules[%d]", i)
		if rule.RuleID != "" {
			if seen[rule.RuleID] {
				errs = append(errs, ValidationError{Field: field + ".rule_id", Message: "duplicate rule_id: " + rule.RuleID})
			}
			seen[rule.RuleID] = true
		}
		if strings.TrimSpace(rule.Condition) == "" {
			errs = append(errs, ValidationError{Field: field + ".condition", Message: "condition must not be empty"})
		}
	}

	return len(errs) == 0, errs
}

func flattenSchemaError(err error) []ValidationError {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []ValidationError{{Field: "$", Message: err.Error()}}
	}
	var out []ValidationError
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, ValidationError{
				Field:   e.InstanceLocation,
				Message: e.Message,
			})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}
