// Package eval implements the expectation-matching engine: field
// predicates, tool-call-set matching, entity diffing, behavior
// classification and the alternative resolver. Everything here is a pure
// function of its inputs; traces and scenarios are never mutated.
package eval

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/yalp/jsonpath"

	"github.com/mykhaliev/timeline-evals/model"
)

// EvalPredicate applies one field predicate to a value. It never panics:
// non-numeric input fails gte/lte with a diagnostic instead.
func EvalPredicate(value any, pred model.FieldPredicate) (bool, string) {
	switch pred.Op {
	case model.OpEquals:
		if deepEqual(value, pred.Equals) {
			return true, ""
		}
		return false, fmt.Sprintf("expected %v, got %v", pred.Equals, value)
	case model.OpGte:
		num, ok := toNumber(value)
		if !ok {
			return false, fmt.Sprintf("gte(%v) requires a numeric value, got %v", pred.Bound, value)
		}
		if num >= pred.Bound {
			return true, ""
		}
		return false, fmt.Sprintf("expected >= %v, got %v", pred.Bound, num)
	case model.OpLte:
		num, ok := toNumber(value)
		if !ok {
			return false, fmt.Sprintf("lte(%v) requires a numeric value, got %v", pred.Bound, value)
		}
		if num <= pred.Bound {
			return true, ""
		}
		return false, fmt.Sprintf("expected <= %v, got %v", pred.Bound, num)
	case model.OpPattern:
		text := normalize(value)
		if MatchPattern(text, pred.Pattern) {
			return true, ""
		}
		return false, fmt.Sprintf("value %q does not match pattern %q", text, pred.Pattern)
	default:
		// Absent predicate leaves the field unconstrained.
		return true, ""
	}
}

// MatchPattern performs the case-insensitive pattern match used for both
// entity fields and free-text agent responses. Patterns that do not
// compile as regular expressions degrade to literal substring matching.
func MatchPattern(text, pattern string) bool {
	if pattern == "" {
		return true
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return strings.Contains(strings.ToLower(text), strings.ToLower(pattern))
	}
	return re.MatchString(text)
}

// LookupField resolves a declared field name against an entity. Names
// starting with "$" are JSONPath expressions into the field map; names
// containing dots traverse nested maps.
func LookupField(entity model.Entity, name string) (any, bool) {
	if strings.HasPrefix(name, "$") {
		value, err := jsonpath.Read(mapToAny(entity.Fields), name)
		if err != nil {
			return nil, false
		}
		return value, true
	}
	if strings.Contains(name, ".") {
		return getNestedValue(entity.Fields, name)
	}
	value, ok := entity.Fields[name]
	return value, ok
}

func mapToAny(m map[string]any) any {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// getNestedValue retrieves a value from a nested map using dot notation,
// e.g. "transform.scale.x" traverses m["transform"]["scale"]["x"].
func getNestedValue(m map[string]any, path string) (any, bool) {
	keys := strings.Split(path, ".")
	var current any = m

	for _, key := range keys {
		currentMap, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		value, exists := currentMap[key]
		if !exists {
			return nil, false
		}
		current = value
	}
	return current, true
}

// deepEqual compares through normalization so YAML ints, JSON floats and
// their string renderings agree on equality.
func deepEqual(a, b any) bool {
	return normalize(a) == normalize(b)
}

func normalize(v any) string {
	if v == nil {
		return "null"
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		var parts []string
		for i := 0; i < rv.Len(); i++ {
			parts = append(parts, normalize(rv.Index(i).Interface()))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f == float64(int64(f)) {
			return fmt.Sprintf("%d", int64(f))
		}
		return fmt.Sprintf("%g", f)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fmt.Sprintf("%d", rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fmt.Sprintf("%d", rv.Uint())
	case reflect.String:
		return rv.String()
	default:
		return fmt.Sprint(v)
	}
}

func toNumber(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}
