// Package connector stubs the external model-invocation handoff. Spec.md
// treats live provider SDK adapters (OpenAI/Gemini/Ollama) as out-of-scope
// collaborators; this package only implements the per-provider rate limit
// and the deterministic stub response MODEL_GARDEN_STUB_RESPONSES calls for.
package connector

import (
	"time"

	"github.com/TimMatthis/auzguard/pkg/routing"
)

// InvokeRequest is the handoff payload after a decision has been emitted
// and audited.
type InvokeRequest struct {
	Target  routing.RouteTarget
	Payload map[string]any
}

// InvokeResponse is what the (stubbed) upstream model call returns.
type InvokeResponse struct {
	Provider   string        `json:"provider"`
	TargetID   string        `json:"target_id"`
	Output     string        `json:"output"`
	Stubbed    bool          `json:"stubbed"`
	Latency    time.Duration `json:"latency"`
	StubReason string        `json:"stub_reason,omitempty"`
}
