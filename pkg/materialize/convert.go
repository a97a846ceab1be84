package materialize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// assign writes a scanned database value into a field pointer obtained
// from the schema. Drivers hand back a small set of concrete types
// (int64, float64, bool, []byte, string, time.Time); everything else is
// a mismatch. A nil value leaves the field at its zero value.
func assign(dst, val any) error {
	if val == nil {
		return nil
	}
	switch d := dst.(type) {
	case *string:
		*d = toString(val)
		return nil
	case *int64:
		n, ok := toInt64(val)
		if !ok {
			return fmt.Errorf("cannot convert %T to int64", val)
		}
		*d = n
		return nil
	case *int:
		n, ok := toInt64(val)
		if !ok {
			return fmt.Errorf("cannot convert %T to int", val)
		}
		*d = int(n)
		return nil
	case *int32:
		n, ok := toInt64(val)
		if !ok {
			return fmt.Errorf("cannot convert %T to int32", val)
		}
		*d = int32(n)
		return nil
	case *float64:
		f, ok := toFloat64(val)
		if !ok {
			return fmt.Errorf("cannot convert %T to float64", val)
		}
		*d = f
		return nil
	case *float32:
		f, ok := toFloat64(val)
		if !ok {
			return fmt.Errorf("cannot convert %T to float32", val)
		}
		*d = float32(f)
		return nil
	case *bool:
		*d = toBool(val)
		return nil
	case *time.Time:
		t, ok := toTime(val)
		if !ok {
			return fmt.Errorf("cannot convert %T to time.Time", val)
		}
		*d = t
		return nil
	case *uuid.UUID:
		id, err := uuid.Parse(toString(val))
		if err != nil {
			return fmt.Errorf("cannot convert %T to uuid: %v", val, err)
		}
		*d = id
		return nil
	case *[]byte:
		switch v := val.(type) {
		case []byte:
			buf := make([]byte, len(v))
			copy(buf, v)
			*d = buf
		case string:
			*d = []byte(v)
		default:
			return fmt.Errorf("cannot convert %T to []byte", val)
		}
		return nil
	default:
		return fmt.Errorf("unsupported field type %T", dst)
	}
}

func toString(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toInt64(val any) (int64, bool) {
	switch v := val.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		return int64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func toFloat64(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case []byte:
		f, err := strconv.ParseFloat(string(v), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toBool(val any) bool {
	switch v := val.(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case float64:
		return v != 0
	case []byte:
		return parseBoolString(string(v))
	case string:
		return parseBoolString(v)
	default:
		return false
	}
}

func parseBoolString(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	if lower == "1" || lower == "true" || lower == "yes" || lower == "on" || lower == "t" {
		return true
	}
	if b, err := strconv.ParseBool(lower); err == nil {
		return b
	}
	return false
}

// timeLayouts are tried in order when a date/time arrives as text.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
}

func toTime(val any) (time.Time, bool) {
	switch v := val.(type) {
	case time.Time:
		return v, true
	case []byte:
		return parseTimeString(string(v))
	case string:
		return parseTimeString(v)
	default:
		return time.Time{}, false
	}
}

func parseTimeString(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
