package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Filter is one expression of the Klaviyo filter DSL, e.g.
// equals(messages.channel,'email').
type Filter string

// String returns the expression.
func (f Filter) String() string { return string(f) }

// Equals matches field == value.
func Equals(field string, value any) Filter {
	return Filter(fmt.Sprintf("equals(%s,%s)", field, formatValue(value)))
}

// ContainsAny matches when field is one of values.
func ContainsAny(field string, values []string) Filter {
	// Values are JSON strings, which is the list syntax the API expects.
	list, _ := json.Marshal(values)
	if values == nil {
		list = []byte("[]")
	}
	return Filter(fmt.Sprintf("contains-any(%s,%s)", field, list))
}

// GreaterOrEqual matches field >= value.
func GreaterOrEqual(field string, value any) Filter {
	return Filter(fmt.Sprintf("greater-or-equal(%s,%s)", field, formatValue(value)))
}

// LessThan matches field < value.
func LessThan(field string, value any) Filter {
	return Filter(fmt.Sprintf("less-than(%s,%s)", field, formatValue(value)))
}

// And combines filters. Empty filters are skipped; a single filter is
// returned unchanged.
func And(filters ...Filter) Filter {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		if f != "" {
			parts = append(parts, string(f))
		}
	}

	switch len(parts) {
	case 0:
		return ""
	case 1:
		return Filter(parts[0])
	default:
		return Filter("and(" + strings.Join(parts, ",") + ")")
	}
}

// Datetime renders a timestamp the way filters and report timeframes expect.
func Datetime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", `\'`) + "'"
	case time.Time:
		return Datetime(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
