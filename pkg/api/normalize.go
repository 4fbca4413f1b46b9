package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrNotNumeric is returned when a JSON value cannot be read as a number.
var ErrNotNumeric = errors.New("value is not numeric")

// Number reads a loosely typed statistic as a float64. Accepted shapes:
//
//	12.5            number
//	"12.5"          numeric string
//	[12.5]          single-element list
//	{"value": 12.5} keyed object, else its first numeric field by key order
//	null            zero
func Number(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}

	switch raw[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrNotNumeric, err)
		}
		if len(list) == 0 {
			return 0, nil
		}
		if len(list) > 1 {
			return 0, fmt.Errorf("%w: list of %d values", ErrNotNumeric, len(list))
		}
		return Number(list[0])

	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrNotNumeric, err)
		}
		if v, ok := obj["value"]; ok {
			return Number(v)
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if n, err := Number(obj[k]); err == nil {
				return n, nil
			}
		}
		return 0, fmt.Errorf("%w: object without numeric field", ErrNotNumeric)

	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrNotNumeric, err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, s)
		}
		return n, nil

	default:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, fmt.Errorf("%w: %s", ErrNotNumeric, raw)
		}
		return n, nil
	}
}

// NumberOrZero is Number with malformed values mapped to zero.
func NumberOrZero(raw json.RawMessage) float64 {
	n, err := Number(raw)
	if err != nil {
		return 0
	}
	return n
}

// Value is a float64 that decodes from any shape Number accepts. Malformed
// values decode as zero.
type Value float64

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	*v = Value(NumberOrZero(data))
	return nil
}

// Float returns the value as float64; a nil Value is zero.
func (v *Value) Float() float64 {
	if v == nil {
		return 0
	}
	return float64(*v)
}

// Statistics is a statistic-name to raw value map as found in report results.
type Statistics map[string]json.RawMessage

// Float returns the named statistic. A missing statistic is zero; a
// malformed one is zero plus an error wrapping ErrNotNumeric.
func (s Statistics) Float(name string) (float64, error) {
	raw, ok := s[name]
	if !ok {
		return 0, nil
	}
	n, err := Number(raw)
	if err != nil {
		return 0, fmt.Errorf("statistic %s: %w", name, err)
	}
	return n, nil
}
