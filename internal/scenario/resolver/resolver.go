// Package resolver substitutes {dotted.path} placeholders in step parameters
// against the execution context. Resolution is pure: it never mutates its
// inputs and performs no I/O.
package resolver

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/agentrun/agentrun/internal/scenario/ctxpath"
)

// maxDepth bounds placeholder-chasing recursion when a resolved value is
// itself a placeholder ("{a}" -> "{b}" -> value).
const maxDepth = 10

var (
	exactPlaceholderRe = regexp.MustCompile(`^\{([A-Za-z0-9_]+(?:\.[A-Za-z0-9_]+)*)\}$`)
	inlinePlaceholderRe = regexp.MustCompile(`\{([A-Za-z0-9_]+(?:\.[A-Za-z0-9_]+)*)\}`)
)

// Resolve substitutes placeholders in value against context.
//
// A string that is exactly one placeholder resolves to the referenced value
// with its original type. Any other string gets inline substitution of each
// placeholder's string form; placeholders whose paths do not resolve are left
// literally. Maps and lists are resolved element-wise; other values pass
// through unchanged.
func Resolve(value any, context map[string]any) any {
	return resolve(value, context, 0)
}

func resolve(value any, context map[string]any, depth int) any {
	switch v := value.(type) {
	case string:
		return resolveString(v, context, depth)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, elem := range v {
			out[k] = resolve(elem, context, depth)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = resolve(elem, context, depth)
		}
		return out
	default:
		return value
	}
}

func resolveString(s string, context map[string]any, depth int) any {
	if match := exactPlaceholderRe.FindStringSubmatch(s); match != nil {
		resolved, ok := ctxpath.Get(context, match[1])
		if ok {
			// A resolved value may itself be a placeholder pointing elsewhere.
			if next, isString := resolved.(string); isString && next != s && depth < maxDepth {
				if exactPlaceholderRe.MatchString(next) {
					return resolveString(next, context, depth+1)
				}
			}
			return resolved
		}
		// Unresolvable exact placeholder falls through to inline handling,
		// which leaves it literally in place.
	}

	return inlinePlaceholderRe.ReplaceAllStringFunc(s, func(placeholder string) string {
		path := placeholder[1 : len(placeholder)-1]
		resolved, ok := ctxpath.Get(context, path)
		if !ok {
			return placeholder
		}
		return Stringify(resolved)
	})
}

// Stringify renders a context value for inline template substitution.
// Scalars render plainly; maps and lists render as compact JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(encoded)
	}
}
