package flows

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// LookupField returns the value stored under field in the first source that
// contains field as a key. Presence is structural: a nil or empty value still
// wins over later sources. Nil sources are skipped.
func LookupField(sources []map[string]any, field string) (any, bool) {
	for _, src := range sources {
		if src == nil {
			continue
		}
		if v, ok := src[field]; ok {
			return v, true
		}
	}
	return nil, false
}

// Stringify renders a resolved input or stored value the way it is compared
// against the stored identity.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []string:
		return strings.Join(val, ",")
	case []any:
		parts := make([]string, len(val))
		for i := range val {
			parts[i] = Stringify(val[i])
		}
		return strings.Join(parts, ",")
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// Truthy reports whether v counts as a usable identity value. nil, false,
// numeric zero, NaN and the empty string do not.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case bool:
		return val
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return val != ""
		}
		return f != 0 && !math.IsNaN(f)
	case int:
		return val != 0
	case int32:
		return val != 0
	case int64:
		return val != 0
	case uint:
		return val != 0
	case uint32:
		return val != 0
	case uint64:
		return val != 0
	case float32:
		return val != 0 && !math.IsNaN(float64(val))
	case float64:
		return val != 0 && !math.IsNaN(val)
	default:
		return true
	}
}
