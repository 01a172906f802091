package games

import (
	"math"
	"strconv"
	"strings"

	"github.com/MJE43/pf-bet-engine/internal/errs"
)

// Params arrive as decoded JSON, so numbers are usually float64. Strings and
// native ints are accepted too for CLI and test callers.

func intParam(params map[string]any, key string, def int) (int, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return def, nil
	}

	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		if math.Mod(v, 1) != 0 {
			return 0, errs.Invalid("%s must be an integer, got %v", key, v)
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, errs.Invalid("invalid %s value %q", key, v)
		}
		return n, nil
	default:
		return 0, errs.Invalid("unsupported type for %s: %T", key, raw)
	}
}

func floatParam(params map[string]any, key string) (float64, bool, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return 0, false, nil
	}

	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, true, errs.Invalid("invalid %s value %q", key, v)
		}
		f = parsed
	default:
		return 0, true, errs.Invalid("unsupported type for %s: %T", key, raw)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, true, errs.Invalid("%s must be finite", key)
	}
	return f, true, nil
}

func requireFloat(params map[string]any, key string) (float64, error) {
	f, ok, err := floatParam(params, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errs.Invalid("%s is required", key)
	}
	return f, nil
}

// choiceParam returns the lower-cased value of key, which must be one of allowed.
// An empty def makes the key required.
func choiceParam(params map[string]any, key, def string, allowed ...string) (string, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		if def == "" {
			return "", errs.Invalid("%s is required", key)
		}
		return def, nil
	}

	s, ok := raw.(string)
	if !ok {
		return "", errs.Invalid("unsupported type for %s: %T", key, raw)
	}

	s = strings.ToLower(strings.TrimSpace(s))
	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}
	return "", errs.Invalid("invalid %s %q (want one of %s)", key, s, strings.Join(allowed, ", "))
}

func intSliceParam(params map[string]any, key string) ([]int, bool, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return nil, false, nil
	}

	switch v := raw.(type) {
	case []int:
		return v, true, nil
	case []any:
		out := make([]int, len(v))
		for i, item := range v {
			n, err := intParam(map[string]any{key: item}, key, 0)
			if err != nil {
				return nil, true, err
			}
			out[i] = n
		}
		return out, true, nil
	default:
		return nil, true, errs.Invalid("%s must be a list of integers, got %T", key, raw)
	}
}
