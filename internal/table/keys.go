package table

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Date pattern tokens, longest first so "yyyy" wins over "yy".
var patternTokens = []struct {
	token  string
	layout string
	part   datePart
}{
	{"yyyy", "2006", partYear},
	{"yy", "06", partYear},
	{"MM", "01", partMonth},
	{"dd", "02", partDay},
	{"HH", "15", partHour},
	{"mm", "04", partMinute},
	{"ss", "05", partSecond},
	{"SSS", "000", partMilli},
}

type datePart uint8

const (
	partYear datePart = 1 << iota
	partMonth
	partDay
	partHour
	partMinute
	partSecond
	partMilli
)

var fallbackLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// keyParser turns ingested key cells into epoch milliseconds.
type keyParser struct {
	layout string
	parts  datePart
	offset int64 // milliseconds subtracted from parsed wall times
	base   time.Time
}

func newKeyParser(pattern string, offsetHours float64, baseMillis int64) (keyParser, error) {
	p := keyParser{
		offset: int64(math.Round(offsetHours * float64(time.Hour/time.Millisecond))),
		base:   time.UnixMilli(baseMillis).UTC(),
	}
	if pattern == "" {
		return p, nil
	}
	layout, parts, err := convertPattern(pattern)
	if err != nil {
		return p, err
	}
	p.layout, p.parts = layout, parts
	return p, nil
}

// convertPattern rewrites the yyyy/MM/dd/HH/mm/ss/SSS mini-language into a
// time layout. Fractional seconds must follow '.' or ','.
func convertPattern(pattern string) (string, datePart, error) {
	var b strings.Builder
	var parts datePart
	for i := 0; i < len(pattern); {
		matched := false
		for _, tok := range patternTokens {
			if !strings.HasPrefix(pattern[i:], tok.token) {
				continue
			}
			if tok.part == partMilli && (i == 0 || (pattern[i-1] != '.' && pattern[i-1] != ',')) {
				return "", 0, fmt.Errorf("date pattern %q: SSS must follow '.' or ','", pattern)
			}
			b.WriteString(tok.layout)
			parts |= tok.part
			i += len(tok.token)
			matched = true
			break
		}
		if !matched {
			b.WriteByte(pattern[i])
			i++
		}
	}
	if parts == 0 {
		return "", 0, fmt.Errorf("date pattern %q has no date fields", pattern)
	}
	return b.String(), parts, nil
}

func (p keyParser) parseDate(s string) (int64, error) {
	if p.layout == "" {
		for _, l := range fallbackLayouts {
			if t, err := time.Parse(l, s); err == nil {
				return t.UnixMilli() - p.offset, nil
			}
		}
		return 0, fmt.Errorf("unparseable date %q", s)
	}
	t, err := time.Parse(p.layout, s)
	if err != nil {
		return 0, err
	}
	pick := func(part datePart, parsed, base int) int {
		if p.parts&part != 0 {
			return parsed
		}
		return base
	}
	year := pick(partYear, t.Year(), p.base.Year())
	month := pick(partMonth, int(t.Month()), int(p.base.Month()))
	day := pick(partDay, t.Day(), p.base.Day())
	hour := pick(partHour, t.Hour(), p.base.Hour())
	minute := pick(partMinute, t.Minute(), p.base.Minute())
	sec := pick(partSecond, t.Second(), p.base.Second())
	ns := pick(partMilli, t.Nanosecond(), p.base.Nanosecond())
	ts := time.Date(year, time.Month(month), day, hour, minute, sec, ns, time.UTC)
	return ts.UnixMilli() - p.offset, nil
}

// parseKey accepts integer and float kinds, numeric or date strings and
// time.Time values.
func (p keyParser) parseKey(v any) (int64, error) {
	switch k := v.(type) {
	case int64:
		return k, nil
	case int:
		return int64(k), nil
	case int32:
		return int64(k), nil
	case int16:
		return int64(k), nil
	case int8:
		return int64(k), nil
	case uint32:
		return int64(k), nil
	case uint16:
		return int64(k), nil
	case uint8:
		return int64(k), nil
	case uint:
		if uint64(k) > math.MaxInt64 {
			return 0, fmt.Errorf("key %d overflows int64", k)
		}
		return int64(k), nil
	case uint64:
		if k > math.MaxInt64 {
			return 0, fmt.Errorf("key %d overflows int64", k)
		}
		return int64(k), nil
	case float64:
		return floatKey(k)
	case float32:
		return floatKey(float64(k))
	case json.Number:
		return p.parseKey(string(k))
	case time.Time:
		return k.UnixMilli(), nil
	case string:
		s := strings.TrimSpace(k)
		if p.layout == "" {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n, nil
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return floatKey(f)
			}
		}
		return p.parseDate(s)
	case nil:
		return 0, fmt.Errorf("missing key")
	}
	return 0, fmt.Errorf("unsupported key type %T", v)
}

func floatKey(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite key %v", f)
	}
	f = math.Floor(f)
	// float64(math.MaxInt64) rounds up to 2^63.
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("key %v overflows int64", f)
	}
	return int64(f), nil
}

// coerceValue converts a value cell. nil and non-numeric strings become NaN;
// types that cannot carry a number are rejected.
func coerceValue(v any) (float64, error) {
	switch k := v.(type) {
	case float64:
		return k, nil
	case float32:
		return float64(k), nil
	case int:
		return float64(k), nil
	case int64:
		return float64(k), nil
	case int32:
		return float64(k), nil
	case int16:
		return float64(k), nil
	case int8:
		return float64(k), nil
	case uint:
		return float64(k), nil
	case uint64:
		return float64(k), nil
	case uint32:
		return float64(k), nil
	case uint16:
		return float64(k), nil
	case uint8:
		return float64(k), nil
	case bool:
		if k {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return coerceValue(string(k))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(k), 64)
		if err != nil {
			return math.NaN(), nil
		}
		return f, nil
	case nil:
		return math.NaN(), nil
	}
	return 0, fmt.Errorf("unsupported value type %T", v)
}
