package graph

import (
	"encoding/json"
	"fmt"
	"time"
)

// SanitizeProperties maps an arbitrary property map onto the primitive-only
// shape the graph accepts. Scalars and homogeneous primitive arrays pass
// through, times become unix milliseconds, and anything nested is serialized
// to a JSON string. Nil values are dropped.
func SanitizeProperties(props map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(props))
	for key, value := range props {
		if value == nil {
			continue
		}
		sanitized, err := sanitizeValue(value)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", key, err)
		}
		out[key] = sanitized
	}
	return out, nil
}

func sanitizeValue(value any) (any, error) {
	switch v := value.(type) {
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v, nil
	case time.Time:
		return v.UnixMilli(), nil
	case *time.Time:
		if v == nil {
			return nil, nil
		}
		return v.UnixMilli(), nil
	case []string:
		return v, nil
	case []int:
		return v, nil
	case []int64:
		return v, nil
	case []float64:
		return v, nil
	case []float32:
		return v, nil
	case []bool:
		return v, nil
	case []any:
		return sanitizeSlice(v)
	default:
		return jsonString(v)
	}
}

// sanitizeSlice passes a homogeneous primitive slice through and serializes
// everything else.
func sanitizeSlice(values []any) (any, error) {
	if len(values) == 0 {
		return []string{}, nil
	}
	for _, v := range values {
		switch v.(type) {
		case bool, string,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
		default:
			return jsonString(values)
		}
	}
	first := fmt.Sprintf("%T", values[0])
	for _, v := range values[1:] {
		if fmt.Sprintf("%T", v) != first {
			return jsonString(values)
		}
	}
	return values, nil
}

func jsonString(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("serializing non-primitive value: %w", err)
	}
	return string(data), nil
}
