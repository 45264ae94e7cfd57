package utils

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// footnote matches reference markers such as "[1]" or "[a]" left over from
// scraped table cells.
var footnote = regexp.MustCompile(`\[[^\]]*\]`)

// ToFloat converts a loosely typed provider value to float64.
// ok is false when the value is missing or not numeric; the result is then 0.
func ToFloat(val interface{}) (float64, bool) {
	switch v := val.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		return parseNumeric(v.String())
	case string:
		return parseNumeric(v)
	case []byte:
		return parseNumeric(string(v))
	default:
		return 0, false
	}
}

// int64 bounds as floats. 2^63 itself is not representable as an int64.
const (
	minInt64Float = -9223372036854775808.0
	maxInt64Float = 9223372036854775808.0
)

// ToInt converts a loosely typed provider value to int64, truncating any
// fractional part. ok follows the same rules as ToFloat, and values outside
// the int64 range are rejected.
func ToInt(val interface{}) (int64, bool) {
	switch v := val.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
	}
	f, ok := ToFloat(val)
	if !ok || f < minInt64Float || f >= maxInt64Float {
		return 0, false
	}
	return int64(f), true
}

// ToString renders a provider value as text. nil becomes the empty string.
func ToString(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []byte:
		return strings.TrimSpace(string(v))
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func parseNumeric(s string) (float64, bool) {
	s = footnote.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return finite(f)
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
