package expr

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// fold is a Unicode-aware case folder, used everywhere the language spec
// calls for "case-insensitive" string comparison instead of the ASCII-only
// strings.ToLower/EqualFold shortcut.
var fold = cases.Fold()

func foldString(s string) string {
	return fold.String(s)
}

// callFunction dispatches one of the evaluator's built-in functions. name is
// matched exactly as written in the expression, so function names are
// case-sensitive. rawArgs are the unevaluated AST nodes (has() treats its
// argument as a field-path name rather than a value to resolve); each case
// evaluates the arguments it needs itself.
func (e *Evaluator) callFunction(name string, rawArgs []node, ctx map[string]any) (any, error) {
	switch name {
	case "has":
		if len(rawArgs) != 1 {
			return nil, fmt.Errorf("has() takes exactly 1 argument")
		}
		path, err := fieldPathArg(rawArgs[0])
		if err != nil {
			return nil, err
		}
		_, found := resolvePath(ctx, path)
		return found, nil

	case "contains":
		if len(rawArgs) != 2 {
			return nil, fmt.Errorf("contains() takes exactly 2 arguments")
		}
		hay, needle, err := e.evalStringPair(rawArgs, ctx)
		if err != nil {
			return false, nil //nolint:nilerr // non-string operands are a non-match, not an error
		}
		return strings.Contains(foldString(hay), foldString(needle)), nil

	case "regex_match":
		if len(rawArgs) != 2 {
			return nil, fmt.Errorf("regex_match() takes exactly 2 arguments")
		}
		value, pattern, err := e.evalStringPair(rawArgs, ctx)
		if err != nil {
			return false, nil //nolint:nilerr
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("Invalid regex pattern")
		}
		return re.MatchString(value), nil

	case "starts_with":
		if len(rawArgs) != 2 {
			return nil, fmt.Errorf("starts_with() takes exactly 2 arguments")
		}
		value, prefix, err := e.evalStringPair(rawArgs, ctx)
		if err != nil {
			return false, nil //nolint:nilerr
		}
		return strings.HasPrefix(foldString(value), foldString(prefix)), nil

	case "ends_with":
		if len(rawArgs) != 2 {
			return nil, fmt.Errorf("ends_with() takes exactly 2 arguments")
		}
		value, suffix, err := e.evalStringPair(rawArgs, ctx)
		if err != nil {
			return false, nil //nolint:nilerr
		}
		return strings.HasSuffix(foldString(value), foldString(suffix)), nil

	case "length":
		if len(rawArgs) != 1 {
			return nil, fmt.Errorf("length() takes exactly 1 argument")
		}
		v, err := e.eval(rawArgs[0], ctx)
		if err != nil {
			return nil, err
		}
		return lengthOf(v) > 0, nil
	}

	return nil, fmt.Errorf("unknown function %q", name)
}

func fieldPathArg(n node) (string, error) {
	switch t := n.(type) {
	case *fieldPathNode:
		return t.path, nil
	case *literalNode:
		if s, ok := t.value.(string); ok {
			return s, nil
		}
	}
	return "", fmt.Errorf("has() requires a field path argument")
}

func (e *Evaluator) evalStringPair(args []node, ctx map[string]any) (string, string, error) {
	a, err := e.eval(args[0], ctx)
	if err != nil {
		return "", "", err
	}
	b, err := e.eval(args[1], ctx)
	if err != nil {
		return "", "", err
	}
	as, aok := asString(a)
	bs, bok := asString(b)
	if !aok || !bok {
		return "", "", fmt.Errorf("non-string operand")
	}
	return as, bs, nil
}

func lengthOf(v any) int {
	switch t := v.(type) {
	case string:
		return len(t)
	case []any:
		return len(t)
	case map[string]any:
		return len(t)
	}
	return 0
}
