package interval

import (
	"testing"
	"time"
)

func utc(y int, m time.Month, d, h, min int) int64 {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC).UnixMilli()
}

func TestFixedUnitAlignment(t *testing.T) {
	g, err := New(Millisecond, 2)
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct{ key, want int64 }{
		{0, 0}, {1, 0}, {2, 2}, {3, 2}, {4, 4}, {-1, -2}, {-2, -2}, {-3, -4},
	}
	for _, tc := range cases {
		if got := g.Start(tc.key); got != tc.want {
			t.Fatalf("Start(%d) = %d, want %d", tc.key, got, tc.want)
		}
	}
}

func TestNextSequence(t *testing.T) {
	g, _ := New(Minute, 5)
	start := g.Start(utc(2024, 3, 1, 10, 7))
	if start != utc(2024, 3, 1, 10, 5) {
		t.Fatalf("unexpected start %d", start)
	}
	if n := g.Next(); n != utc(2024, 3, 1, 10, 10) {
		t.Fatalf("unexpected next %d", n)
	}
	if n := g.Next(); n != utc(2024, 3, 1, 10, 15) {
		t.Fatalf("unexpected next %d", n)
	}
}

func TestWeekStartsOnMonday(t *testing.T) {
	g, _ := New(Week, 1)
	// Sunday 2024-03-10 belongs to the week of Monday 2024-03-04.
	got := g.Start(utc(2024, 3, 10, 23, 0))
	if got != utc(2024, 3, 4, 0, 0) {
		t.Fatalf("got %v", time.UnixMilli(got).UTC())
	}
	if time.UnixMilli(g.Next()).UTC().Weekday() != time.Monday {
		t.Fatal("next week boundary should be a Monday")
	}
}

func TestCalendarUnits(t *testing.T) {
	cases := []struct {
		unit  Unit
		count int
		key   int64
		start int64
		next  int64
	}{
		{Month, 1, utc(2024, 2, 29, 12, 0), utc(2024, 2, 1, 0, 0), utc(2024, 3, 1, 0, 0)},
		{Quarter, 1, utc(2024, 5, 15, 0, 0), utc(2024, 4, 1, 0, 0), utc(2024, 7, 1, 0, 0)},
		{Semester, 1, utc(2024, 8, 1, 0, 0), utc(2024, 7, 1, 0, 0), utc(2025, 1, 1, 0, 0)},
		{Year, 1, utc(2024, 12, 31, 23, 59), utc(2024, 1, 1, 0, 0), utc(2025, 1, 1, 0, 0)},
		{Month, 2, utc(2024, 4, 10, 0, 0), utc(2024, 3, 1, 0, 0), utc(2024, 5, 1, 0, 0)},
		{Month, 1, utc(1969, 12, 5, 0, 0), utc(1969, 12, 1, 0, 0), utc(1970, 1, 1, 0, 0)},
	}
	for _, tc := range cases {
		g, err := New(tc.unit, tc.count)
		if err != nil {
			t.Fatal(err)
		}
		if got := g.Start(tc.key); got != tc.start {
			t.Fatalf("%s: start %v, want %v", g.Hash(), time.UnixMilli(got).UTC(), time.UnixMilli(tc.start).UTC())
		}
		if got := g.Next(); got != tc.next {
			t.Fatalf("%s: next %v, want %v", g.Hash(), time.UnixMilli(got).UTC(), time.UnixMilli(tc.next).UTC())
		}
	}
}

func TestParse(t *testing.T) {
	cases := map[string]string{
		"5ms":     "5ms",
		"1000":    "1000ms",
		"15min":   "15min",
		"1 d":     "1d",
		"3months": "3mo",
		"year":    "1y",
	}
	for in, want := range cases {
		g, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if g.Hash() != want {
			t.Fatalf("Parse(%q).Hash() = %q, want %q", in, g.Hash(), want)
		}
	}
	for _, bad := range []string{"", "0ms", "5parsecs"} {
		if _, err := Parse(bad); err == nil {
			t.Fatalf("Parse(%q) should fail", bad)
		}
	}
}

func TestDuration(t *testing.T) {
	g, _ := New(Second, 30)
	if g.Duration() != 30*time.Second {
		t.Fatalf("unexpected duration %v", g.Duration())
	}
}
