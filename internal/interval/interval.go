// Package interval generates aligned bucket boundaries for time aggregation.
//
// Fixed units (ms, s, min, h, d, w) align to multiples of count*unit since
// the Unix epoch (weeks start on Monday). Calendar units (mo, q, sem, y)
// align to UTC calendar boundaries, with the bucket index a multiple of count
// counted from January 1970.
package interval

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unit is an interval unit.
type Unit string

const (
	Millisecond Unit = "ms"
	Second      Unit = "s"
	Minute      Unit = "min"
	Hour        Unit = "h"
	Day         Unit = "d"
	Week        Unit = "w"
	Month       Unit = "mo"
	Quarter     Unit = "q"
	Semester    Unit = "sem"
	Year        Unit = "y"
)

const (
	msSecond = int64(1000)
	msMinute = 60 * msSecond
	msHour   = 60 * msMinute
	msDay    = 24 * msHour
	msWeek   = 7 * msDay

	// 1970-01-01 was a Thursday; shifting by three days puts week starts on Monday.
	mondayShift = 3 * msDay
)

var unitNames = map[string]Unit{
	"ms": Millisecond, "millisecond": Millisecond, "milliseconds": Millisecond,
	"s": Second, "sec": Second, "second": Second, "seconds": Second,
	"min": Minute, "m": Minute, "minute": Minute, "minutes": Minute,
	"h": Hour, "hour": Hour, "hours": Hour,
	"d": Day, "day": Day, "days": Day,
	"w": Week, "week": Week, "weeks": Week,
	"mo": Month, "month": Month, "months": Month,
	"q": Quarter, "quarter": Quarter, "quarters": Quarter,
	"sem": Semester, "semester": Semester, "semesters": Semester,
	"y": Year, "year": Year, "years": Year,
}

// ParseUnit resolves a unit name.
func ParseUnit(s string) (Unit, error) {
	if u, ok := unitNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return u, nil
	}
	return "", fmt.Errorf("unknown interval unit %q", s)
}

// fixed returns the unit length in milliseconds, 0 for calendar units.
func (u Unit) fixed() int64 {
	switch u {
	case Millisecond:
		return 1
	case Second:
		return msSecond
	case Minute:
		return msMinute
	case Hour:
		return msHour
	case Day:
		return msDay
	case Week:
		return msWeek
	}
	return 0
}

// months returns the unit length in months, 0 for fixed units.
func (u Unit) months() int {
	switch u {
	case Month:
		return 1
	case Quarter:
		return 3
	case Semester:
		return 6
	case Year:
		return 12
	}
	return 0
}

// Generator yields successive bucket boundaries.
type Generator struct {
	unit  Unit
	count int
	cur   int64
}

// New creates a generator for count units.
func New(unit Unit, count int) (*Generator, error) {
	if unit.fixed() == 0 && unit.months() == 0 {
		return nil, fmt.Errorf("unknown interval unit %q", unit)
	}
	if count < 1 {
		return nil, fmt.Errorf("interval count must be >= 1, got %d", count)
	}
	return &Generator{unit: unit, count: count}, nil
}

// Parse reads "<count><unit>" such as "5ms", "15min" or "3mo". A bare number
// is a count of milliseconds.
func Parse(s string) (*Generator, error) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	count := 1
	if i > 0 {
		n, err := strconv.Atoi(s[:i])
		if err != nil {
			return nil, fmt.Errorf("parse interval %q: %w", s, err)
		}
		count = n
	}
	unitPart := s[i:]
	if unitPart == "" {
		if i == 0 {
			return nil, fmt.Errorf("parse interval %q: empty", s)
		}
		return New(Millisecond, count)
	}
	u, err := ParseUnit(unitPart)
	if err != nil {
		return nil, fmt.Errorf("parse interval %q: %w", s, err)
	}
	return New(u, count)
}

// Unit returns the generator unit.
func (g *Generator) Unit() Unit { return g.unit }

// Count returns the number of units per bucket.
func (g *Generator) Count() int { return g.count }

// Hash identifies the generator configuration.
func (g *Generator) Hash() string { return strconv.Itoa(g.count) + string(g.unit) }

func (g *Generator) String() string { return g.Hash() }

// Duration approximates one bucket. Calendar units use 30-day months.
func (g *Generator) Duration() time.Duration {
	if f := g.unit.fixed(); f > 0 {
		return time.Duration(f*int64(g.count)) * time.Millisecond
	}
	return time.Duration(g.unit.months()*g.count) * 30 * 24 * time.Hour
}

// Start aligns key down to its bucket boundary and positions the generator
// there. The returned value is the bucket start.
func (g *Generator) Start(key int64) int64 {
	g.cur = g.align(key)
	return g.cur
}

// Next advances to the following boundary and returns it.
func (g *Generator) Next() int64 {
	if f := g.unit.fixed(); f > 0 {
		g.cur += f * int64(g.count)
		return g.cur
	}
	t := time.UnixMilli(g.cur).UTC()
	g.cur = t.AddDate(0, g.unit.months()*g.count, 0).UnixMilli()
	return g.cur
}

func (g *Generator) align(key int64) int64 {
	if f := g.unit.fixed(); f > 0 {
		step := f * int64(g.count)
		shift := int64(0)
		if g.unit == Week {
			shift = mondayShift
		}
		return floorDiv(key+shift, step)*step - shift
	}
	t := time.UnixMilli(key).UTC()
	idx := int64(t.Year()-1970)*12 + int64(t.Month()-1)
	step := int64(g.unit.months() * g.count)
	idx = floorDiv(idx, step) * step
	year := 1970 + floorDiv(idx, 12)
	month := idx - floorDiv(idx, 12)*12
	return time.Date(int(year), time.Month(month+1), 1, 0, 0, 0, 0, time.UTC).UnixMilli()
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
