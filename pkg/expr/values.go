package expr

import "strings"

// resolvePath walks a dot-separated path against the dynamic context,
// returning the resolved value and whether every segment was found.
// Missing intermediate keys yield "not found" rather than an error.
func resolvePath(ctx map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var cur any = ctx
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// coerceBool implements the boolean-coercion rules: booleans pass through;
// null/undefined is false; numbers are non-zero; strings/arrays/objects are
// non-empty.
func coerceBool(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		return len(t) > 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return false
	}
}

// asString returns the string form of v and whether v is in fact a string.
func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// asNumber returns the numeric form of v and whether v is numeric.
func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	}
	return 0, false
}

// asArray returns v as a slice and whether v is in fact an array.
func asArray(v any) ([]any, bool) {
	a, ok := v.([]any)
	return a, ok
}

// deepEqual implements the structural equality rules used by ==/!=/in:
// numbers compare numerically, strings lexically, arrays/maps recursively,
// everything else falls back to Go equality (covers bool/nil).
func deepEqual(a, b any) bool {
	if an, aok := asNumber(a); aok {
		if bn, bok := asNumber(b); bok {
			return an == bn
		}
		return false
	}
	if as, aok := a.(string); aok {
		bs, bok := b.(string)
		return aok == bok && as == bs
	}
	if aa, aok := a.([]any); aok {
		ba, bok := b.([]any)
		if !bok || len(aa) != len(ba) {
			return false
		}
		for i := range aa {
			if !deepEqual(aa[i], ba[i]) {
				return false
			}
		}
		return true
	}
	if am, aok := a.(map[string]any); aok {
		bm, bok := b.(map[string]any)
		if !bok || len(am) != len(bm) {
			return false
		}
		for k, v := range am {
			bv, ok := bm[k]
			if !ok || !deepEqual(v, bv) {
				return false
			}
		}
		return true
	}
	return a == b
}
