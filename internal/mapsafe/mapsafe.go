package mapsafe

import "strconv"

// Get retrieves a typed value from a map[string]any.
// If the key is missing or the type cannot be converted, it returns the default value.
// Any integer or float type converts to int and float64, and numbers convert
// to bool by comparison with zero.
func Get[T any](m map[string]any, key string, defaultValue T) T {
	val, ok := m[key]
	if !ok || val == nil {
		return defaultValue
	}

	switch any(defaultValue).(type) {
	case int:
		if n, ok := number(val); ok {
			return any(int(n)).(T)
		}
		if s, ok := val.(string); ok {
			if n, err := strconv.Atoi(s); err == nil {
				return any(n).(T)
			}
		}
	case float64:
		if n, ok := number(val); ok {
			return any(n).(T)
		}
	case string:
		if s, ok := val.(string); ok {
			return any(s).(T)
		}
	case bool:
		if b, ok := val.(bool); ok {
			return any(b).(T)
		}
		if n, ok := number(val); ok {
			return any(n != 0).(T)
		}
		if s, ok := val.(string); ok {
			if b, err := strconv.ParseBool(s); err == nil {
				return any(b).(T)
			}
		}
	default:
		// fallback: if type matches exactly
		if v2, ok := val.(T); ok {
			return v2
		}
	}

	return defaultValue
}

func number(val any) (float64, bool) {
	switch x := val.(type) {
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
