package expr

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Evaluate parses and evaluates src against the context.
func Evaluate(src string, context map[string]any) (any, error) {
	node, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return Eval(node, context)
}

// EvaluateBool evaluates src and applies truthiness to the result.
func EvaluateBool(src string, context map[string]any) (bool, error) {
	result, err := Evaluate(src, context)
	if err != nil {
		return false, err
	}
	return Truthy(result), nil
}

// Eval evaluates a parsed node against the context.
func Eval(node Node, context map[string]any) (any, error) {
	switch n := node.(type) {
	case *NumberLit:
		if n.IsInt {
			return n.Int, nil
		}
		return n.Float, nil
	case *StringLit:
		return n.Value, nil
	case *BoolLit:
		return n.Value, nil
	case *NullLit:
		return nil, nil
	case *Ident:
		if n.Name == "context" {
			return context, nil
		}
		return context[n.Name], nil
	case *Access:
		return evalAccess(n, context)
	case *Unary:
		return evalUnary(n, context)
	case *Binary:
		return evalBinary(n, context)
	default:
		return nil, fmt.Errorf("unknown expression node %T", node)
	}
}

func evalAccess(n *Access, context map[string]any) (any, error) {
	base, err := Eval(n.Base, context)
	if err != nil {
		return nil, err
	}
	key, err := Eval(n.Key, context)
	if err != nil {
		return nil, err
	}

	switch container := base.(type) {
	case map[string]any:
		name, ok := key.(string)
		if !ok {
			name = Truthify(key)
		}
		return container[name], nil
	case []any:
		idx, ok := toInt(key)
		if !ok || idx < 0 || idx >= int64(len(container)) {
			return nil, nil
		}
		return container[idx], nil
	case string:
		idx, ok := toInt(key)
		if !ok || idx < 0 || idx >= int64(len(container)) {
			return nil, nil
		}
		return string(container[idx]), nil
	default:
		// Failed accesses evaluate to null (missing key semantics).
		return nil, nil
	}
}

func evalUnary(n *Unary, context map[string]any) (any, error) {
	operand, err := Eval(n.Operand, context)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "not":
		return !Truthy(operand), nil
	case "-":
		if i, ok := operand.(int64); ok {
			return -i, nil
		}
		f, ok := toFloat(operand)
		if !ok {
			return nil, fmt.Errorf("cannot negate %T", operand)
		}
		return -f, nil
	default:
		return nil, fmt.Errorf("unknown unary operator %q", n.Op)
	}
}

func evalBinary(n *Binary, context map[string]any) (any, error) {
	// Boolean operators short-circuit.
	if n.Op == "and" || n.Op == "or" {
		left, err := Eval(n.Left, context)
		if err != nil {
			return nil, err
		}
		if n.Op == "and" && !Truthy(left) {
			return false, nil
		}
		if n.Op == "or" && Truthy(left) {
			return true, nil
		}
		right, err := Eval(n.Right, context)
		if err != nil {
			return nil, err
		}
		return Truthy(right), nil
	}

	left, err := Eval(n.Left, context)
	if err != nil {
		return nil, err
	}
	right, err := Eval(n.Right, context)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "+", "-", "*", "/", "%":
		return evalArithmetic(n.Op, left, right)
	case "==", "!=", "<", "<=", ">", ">=":
		return evalComparison(n.Op, left, right)
	case "in":
		return evalMembership(left, right)
	default:
		return nil, fmt.Errorf("unknown operator %q", n.Op)
	}
}

func evalArithmetic(op string, left, right any) (any, error) {
	if op == "+" {
		if ls, ok := left.(string); ok {
			if rs, ok := right.(string); ok {
				return ls + rs, nil
			}
		}
	}

	li, lInt := toIntStrict(left)
	ri, rInt := toIntStrict(right)
	if lInt && rInt {
		switch op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		case "/":
			if ri == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			if li%ri == 0 {
				return li / ri, nil
			}
			return float64(li) / float64(ri), nil
		case "%":
			if ri == 0 {
				return nil, fmt.Errorf("modulo by zero")
			}
			return li % ri, nil
		}
	}

	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if !lok || !rok {
		return nil, fmt.Errorf("operator %q not applicable to %T and %T", op, left, right)
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case "%":
		return nil, fmt.Errorf("modulo requires integer operands")
	}
	return nil, fmt.Errorf("unknown arithmetic operator %q", op)
}

// evalComparison compares two values. Same-kind values compare directly.
// Mixed-type comparisons silently coerce to numeric when both sides parse as
// numbers, otherwise both sides fall back to string comparison. This mirrors
// the lenient coercion data-defined scenarios rely on (e.g. "5" > 3).
func evalComparison(op string, left, right any) (any, error) {
	if lf, lok := toFloat(left); lok {
		if rf, rok := toFloat(right); rok {
			return compareOrdered(op, lf, rf), nil
		}
	}

	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		return compareStrings(op, ls, rs), nil
	}

	switch op {
	case "==":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	default:
		// String fallback for ordering across mismatched types.
		return compareStrings(op, Truthify(left), Truthify(right)), nil
	}
}

func compareOrdered(op string, l, r float64) bool {
	switch op {
	case "==":
		return l == r
	case "!=":
		return l != r
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	case ">=":
		return l >= r
	}
	return false
}

func compareStrings(op, l, r string) bool {
	switch op {
	case "==":
		return l == r
	case "!=":
		return l != r
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	case ">=":
		return l >= r
	}
	return false
}

func looseEqual(left, right any) bool {
	if left == nil && right == nil {
		return true
	}
	if reflect.DeepEqual(left, right) {
		return true
	}
	if lf, lok := toFloat(left); lok {
		if rf, rok := toFloat(right); rok {
			return lf == rf
		}
	}
	return false
}

func evalMembership(needle, haystack any) (any, error) {
	switch container := haystack.(type) {
	case string:
		return strings.Contains(container, Truthify(needle)), nil
	case []any:
		for _, elem := range container {
			if looseEqual(needle, elem) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		key, ok := needle.(string)
		if !ok {
			key = Truthify(needle)
		}
		_, found := container[key]
		return found, nil
	default:
		return false, nil
	}
}

// Truthy reports the truthiness of a context value: nil, false, zero numbers,
// empty strings and empty containers are false; everything else is true.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

// Truthify renders a value as a string for coercing comparisons.
func Truthify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
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
		return fmt.Sprintf("%v", val)
	}
}

// toFloat converts numeric values and numeric-looking strings.
func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// toIntStrict accepts only integral values (not numeric strings).
func toIntStrict(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int64:
		return val, true
	case float64:
		if val == float64(int64(val)) {
			return int64(val), true
		}
	}
	return 0, false
}

// toInt accepts integral values and numeric strings, for index access.
func toInt(v any) (int64, bool) {
	if i, ok := toIntStrict(v); ok {
		return i, true
	}
	if s, ok := v.(string); ok {
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err == nil {
			return i, true
		}
	}
	return 0, false
}
