package parser

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

func toString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", typeErr("expected string, got %s", kindOf(v))
	}
	return s, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		if n > math.MaxInt || n < math.MinInt {
			return 0, valueErr("integer %d out of range", n)
		}
		return int(n), nil
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return toInt(i)
		}
		f, err := n.Float64()
		if err != nil {
			return 0, valueErr("invalid number %q", n.String())
		}
		return floatToInt(f)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, valueErr("invalid integer %q", n)
		}
		return i, nil
	default:
		return 0, typeErr("expected integer, got %s", kindOf(v))
	}
}

func floatToInt(f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, valueErr("number %v has a fractional part", f)
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, valueErr("number %v out of range", f)
	}
	return int(f), nil
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case float64, int, int64, json.Number:
		n, err := toInt(b)
		if err != nil || (n != 0 && n != 1) {
			return false, valueErr("expected boolean, got number %v", b)
		}
		return n == 1, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		}
		return false, valueErr("invalid boolean %q", b)
	default:
		return false, typeErr("expected boolean, got %s", kindOf(v))
	}
}

func toList(v any) ([]any, error) {
	switch l := v.(type) {
	case []any:
		return l, nil
	case []map[string]any:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out, nil
	default:
		return nil, typeErr("expected list, got %s", kindOf(v))
	}
}

var (
	zonedLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999Z07:00",
	}
	naiveLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02",
	}

	// ASP.NET JSON dates: /Date(1736931600000)/ or /Date(1736931600000+1100)/
	msDate = regexp.MustCompile(`^/Date\((-?\d+)([+-]\d{4})?\)/$`)
)

// ParseTime converts a raw timestamp value into a time.Time. Strings may be
// RFC 3339, naive ISO 8601 (interpreted in loc), a bare date, or an ASP.NET
// "/Date(ms)/" literal. Numbers are Unix seconds, or milliseconds when too
// large to be seconds. A nil loc means UTC.
func ParseTime(v any, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return parseTimeString(strings.TrimSpace(t), loc)
	case float64, int, int64, json.Number:
		n, err := toInt(t)
		if err != nil {
			return time.Time{}, err
		}
		return unixAuto(int64(n)), nil
	default:
		return time.Time{}, typeErr("expected timestamp, got %s", kindOf(v))
	}
}

func parseTimeString(s string, loc *time.Location) (time.Time, error) {
	if m := msDate.FindStringSubmatch(s); m != nil {
		ms, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return time.Time{}, valueErr("invalid date literal %q", s)
		}
		t := time.UnixMilli(ms).UTC()
		if m[2] != "" {
			sign := 1
			if m[2][0] == '-' {
				sign = -1
			}
			hh, _ := strconv.Atoi(m[2][1:3])
			mm, _ := strconv.Atoi(m[2][3:5])
			t = t.In(time.FixedZone("", sign*(hh*3600+mm*60)))
		}
		return t, nil
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return unixAuto(n), nil
	}
	return time.Time{}, valueErr("invalid timestamp %q", s)
}

func unixAuto(n int64) time.Time {
	if n > 20_000_000_000 || n < -20_000_000_000 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int32, int64, json.Number:
		return "number"
	case map[string]any:
		return "object"
	case []any, []map[string]any:
		return "list"
	default:
		return "unknown"
	}
}
