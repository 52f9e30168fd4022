// Package preprocess enriches an inbound request payload with content-derived
// signals — PII, profanity, risk flags, possible-copyright heuristics — and
// runs a pipeline of rule detectors that attach derived fields and rule
// insights the policy engine's conditions can reference.
package preprocess

// extractText pulls the text the detectors inspect out of the payload:
// prefer the most recent messages[] entry with role in {user, system,
// undefined} and a string content field; fall back to a top-level "message"
// string; otherwise empty.
func extractText(payload map[string]any) string {
	if raw, ok := payload["messages"]; ok {
		if msgs, ok := raw.([]any); ok {
			for i := len(msgs) - 1; i >= 0; i-- {
				m, ok := msgs[i].(map[string]any)
				if !ok {
					continue
				}
				role, hasRole := m["role"]
				roleOK := !hasRole
				if hasRole {
					if rs, ok := role.(string); ok {
						roleOK = rs == "user" || rs == "system"
					}
				}
				if !roleOK {
					continue
				}
				if content, ok := m["content"].(string); ok {
					return content
				}
			}
		}
	}
	if s, ok := payload["message"].(string); ok {
		return s
	}
	return ""
}
