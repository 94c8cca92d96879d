package rules

import (
	"fmt"
	"strings"
)

// params wraps a structural rule's free-form parameter map.
// YAML decodes numbers as int or float64 and lists as []any, so the
// accessors normalize both.
type params map[string]any

func (p params) float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("param %q: expected number, got %T", key, v)
	}
}

func (p params) int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("param %q: expected integer, got %v", key, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("param %q: expected integer, got %T", key, v)
	}
}

// stringList returns a lowercased, trimmed list; required lists must be non-empty
func (p params) stringList(key string, required bool) ([]string, error) {
	v, ok := p[key]
	if !ok {
		if required {
			return nil, fmt.Errorf("param %q is required", key)
		}
		return nil, nil
	}

	var raw []any
	switch list := v.(type) {
	case []any:
		raw = list
	case []string:
		for _, s := range list {
			raw = append(raw, s)
		}
	default:
		return nil, fmt.Errorf("param %q: expected list, got %T", key, v)
	}

	out := make([]string, 0, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("param %q[%d]: expected string, got %T", key, i, item)
		}
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	if required && len(out) == 0 {
		return nil, fmt.Errorf("param %q must not be empty", key)
	}
	return out, nil
}
