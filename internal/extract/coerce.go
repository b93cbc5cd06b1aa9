package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/localsonly/localsbot/internal/schema"
)

// Timestamp layouts accepted for datetime fields, tried in order.
var datetimeLayouts = []string{
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// Coerce converts a decoded JSON value to the declared semantic type of a
// field. Coercion is idempotent: a value already of the target type is
// returned unchanged. A value that cannot be converted yields an error; the
// caller drops the field rather than aborting the extraction.
func Coerce(fieldType schema.FieldType, value any) (any, error) {
	switch fieldType {
	case schema.TypeString:
		return coerceString(value), nil
	case schema.TypeNumber:
		return coerceNumber(value)
	case schema.TypeInteger:
		return coerceInteger(value)
	case schema.TypeBool:
		return coerceBool(value)
	case schema.TypeDateTime:
		return coerceDateTime(value)
	case schema.TypeList:
		return coerceList(value)
	case schema.TypeObject:
		return coerceObject(value), nil
	default:
		return nil, fmt.Errorf("unknown field type %q", fieldType)
	}
}

func coerceString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

func coerceNumber(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as number: %w", v, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to number", value)
	}
}

func coerceInteger(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as integer: %w", v, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", value)
	}
}

func coerceBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("cannot parse %q as bool: %w", v, err)
		}
		return b, nil
	case float64:
		return v != 0, nil
	default:
		return false, fmt.Errorf("cannot convert %T to bool", value)
	}
}

func coerceDateTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range datetimeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse %q as ISO-8601 datetime", v)
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to datetime", value)
	}
}

// coerceList accepts a native list, a string containing a JSON-like list
// (single quotes tolerated), or wraps a bare scalar into a one-element list.
func coerceList(value any) ([]any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case string:
		var list []any
		if err := json.Unmarshal([]byte(strings.ReplaceAll(v, "'", `"`)), &list); err != nil {
			return nil, fmt.Errorf("cannot parse %q as list: %w", v, err)
		}
		return list, nil
	default:
		return []any{value}, nil
	}
}

// coerceObject wraps a bare scalar into a single-key container.
func coerceObject(value any) map[string]any {
	if m, ok := value.(map[string]any); ok {
		return m
	}
	return map[string]any{"value": value}
}
