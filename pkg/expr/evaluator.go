package expr

import (
	"fmt"
	"sync"
)

// Result is the outcome of evaluating a condition against a context.
type Result struct {
	Matched bool
	Reason  string
}

// Evaluator parses and evaluates conditions against a dynamic context map.
// Compiled ASTs are cached by source string under a double-checked-locking
// pattern, so repeated evaluation of the same rule condition does not
// re-tokenize/re-parse on every request.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]node
}

// New creates an Evaluator with an empty AST cache.
func New() *Evaluator {
	return &Evaluator{cache: make(map[string]node)}
}

// Evaluate parses (or retrieves from cache) source and evaluates it against
// ctx. Any structural failure — mismatched parens, unknown function, wrong
// arity, a malformed regex — is converted into a non-match rather than
// propagated, per the expression language's fail-safe contract.
func (e *Evaluator) Evaluate(source string, ctx map[string]any) Result {
	ast, err := e.compile(source)
	if err != nil {
		return Result{Matched: false, Reason: fmt.Sprintf("Expression evaluation error: %v", err)}
	}

	v, err := e.eval(ast, ctx)
	if err != nil {
		return Result{Matched: false, Reason: fmt.Sprintf("Expression evaluation error: %v", err)}
	}

	return Result{Matched: coerceBool(v)}
}

func (e *Evaluator) compile(source string) (node, error) {
	e.mu.RLock()
	ast, hit := e.cache[source]
	e.mu.RUnlock()
	if hit {
		return ast, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if ast, hit = e.cache[source]; hit {
		return ast, nil
	}
	ast, err := parse(source)
	if err != nil {
		return nil, err
	}
	e.cache[source] = ast
	return ast, nil
}

// eval recursively evaluates an AST node, returning a dynamic value (bool,
// float64, string, []any, map[string]any, or nil).
func (e *Evaluator) eval(n node, ctx map[string]any) (any, error) {
	switch t := n.(type) {
	case *literalNode:
		return t.value, nil

	case *fieldPathNode:
		v, _ := resolvePath(ctx, t.path)
		return v, nil

	case *arrayNode:
		items := make([]any, 0, len(t.items))
		for _, item := range t.items {
			v, err := e.eval(item, ctx)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil

	case *notNode:
		v, err := e.eval(t.inner, ctx)
		if err != nil {
			return nil, err
		}
		return !coerceBool(v), nil

	case *andNode:
		lv, err := e.eval(t.left, ctx)
		if err != nil {
			return nil, err
		}
		if !coerceBool(lv) {
			return false, nil
		}
		rv, err := e.eval(t.right, ctx)
		if err != nil {
			return nil, err
		}
		return coerceBool(rv), nil

	case *orNode:
		lv, err := e.eval(t.left, ctx)
		if err != nil {
			return nil, err
		}
		if coerceBool(lv) {
			return true, nil
		}
		rv, err := e.eval(t.right, ctx)
		if err != nil {
			return nil, err
		}
		return coerceBool(rv), nil

	case *compareNode:
		return e.evalCompare(t, ctx)

	case *inNode:
		return e.evalIn(t, ctx)

	case *callNode:
		return e.callFunction(t.name, t.args, ctx)
	}

	return nil, fmt.Errorf("unhandled node type %T", n)
}

func (e *Evaluator) evalCompare(t *compareNode, ctx map[string]any) (any, error) {
	lv, err := e.eval(t.left, ctx)
	if err != nil {
		return nil, err
	}
	rv, err := e.eval(t.right, ctx)
	if err != nil {
		return nil, err
	}

	switch t.op {
	case "==":
		return deepEqual(lv, rv), nil
	case "!=":
		return !deepEqual(lv, rv), nil
	}

	if ln, lok := asNumber(lv); lok {
		if rn, rok := asNumber(rv); rok {
			return numericCompare(t.op, ln, rn), nil
		}
		return false, nil
	}
	if ls, lok := asString(lv); lok {
		if rs, rok := asString(rv); rok {
			return stringCompare(t.op, ls, rs), nil
		}
		return false, nil
	}
	return false, nil
}

func numericCompare(op string, l, r float64) bool {
	switch op {
	case ">=":
		return l >= r
	case "<=":
		return l <= r
	case ">":
		return l > r
	case "<":
		return l < r
	}
	return false
}

func stringCompare(op string, l, r string) bool {
	switch op {
	case ">=":
		return l >= r
	case "<=":
		return l <= r
	case ">":
		return l > r
	case "<":
		return l < r
	}
	return false
}

func (e *Evaluator) evalIn(t *inNode, ctx map[string]any) (any, error) {
	lv, err := e.eval(t.left, ctx)
	if err != nil {
		return nil, err
	}
	rv, err := e.eval(t.right, ctx)
	if err != nil {
		return nil, err
	}
	arr, ok := asArray(rv)
	if !ok {
		// "in" on a non-array RHS is a non-match, never an error, so that
		// compound AND conditions can fall through cleanly.
		return false, nil
	}
	for _, item := range arr {
		if deepEqual(lv, item) {
			return true, nil
		}
	}
	return false, nil
}
