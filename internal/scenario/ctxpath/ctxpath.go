// Package ctxpath navigates dotted paths like "user.profile.0.name" through
// nested map[string]any / []any execution-context values. All scenario
// context access goes through these helpers so navigation semantics stay in
// one place.
package ctxpath

import (
	"strconv"
	"strings"
)

// Get walks path segments through m. Map segments are key lookups, list
// segments are integer index lookups. The second return value reports whether
// the full path resolved.
func Get(m map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	return GetSegments(m, strings.Split(path, "."))
}

// GetSegments is Get with pre-split segments.
func GetSegments(m map[string]any, segments []string) (any, bool) {
	var current any = m
	for _, seg := range segments {
		switch node := current.(type) {
		case map[string]any:
			val, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// Set writes value at the dotted path, creating intermediate maps as needed.
// Navigation is left-to-right; an existing non-map intermediate value is
// replaced by a map. List segments are only written through when the list and
// index already exist.
func Set(m map[string]any, path string, value any) {
	segments := strings.Split(path, ".")
	var current any = m
	for i, seg := range segments {
		last := i == len(segments)-1
		switch node := current.(type) {
		case map[string]any:
			if last {
				node[seg] = value
				return
			}
			next, ok := node[seg]
			if !ok {
				child := map[string]any{}
				node[seg] = child
				current = child
				continue
			}
			switch next.(type) {
			case map[string]any, []any:
				current = next
			default:
				child := map[string]any{}
				node[seg] = child
				current = child
			}
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return
			}
			if last {
				node[idx] = value
				return
			}
			current = node[idx]
		default:
			return
		}
	}
}

// Clone returns a deep copy of v. Maps and lists are copied recursively;
// scalars are returned as-is.
func Clone(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, val := range node {
			out[k] = Clone(val)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, val := range node {
			out[i] = Clone(val)
		}
		return out
	default:
		return v
	}
}

// CloneMap is Clone specialized for a top-level context map. A nil input
// yields an empty map.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return Clone(m).(map[string]any)
}

// Merge copies every key of src into dst (top-level keys win wholesale; no
// recursive merging). Later callers layer maps lowest-precedence first.
func Merge(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}
