package aggregator

import (
	"math"
	"testing"
)

var nan = math.NaN()

func run(t *testing.T, typ Type, values []float64, weights []float64) Aggregator {
	t.Helper()
	wc := NoColumn
	if weights != nil {
		wc = 2
	}
	a, err := New(typ, 1, wc)
	if err != nil {
		t.Fatalf("New(%s): %v", typ, err)
	}
	for i, v := range values {
		w := nan
		if weights != nil {
			w = weights[i]
		}
		a.Add(v, w)
	}
	return a
}

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) < 1e-12
}

func TestAggregators(t *testing.T) {
	cases := []struct {
		name    string
		typ     Type
		values  []float64
		weights []float64
		want    float64
	}{
		{"first skips leading NaN", First, []float64{nan, 2, 3}, nil, 2},
		{"first empty", First, nil, nil, nan},
		{"last keeps last valid", Last, []float64{1, 2, nan}, nil, 2},
		{"first-value takes NaN", FirstValue, []float64{nan, 2}, nil, nan},
		{"last-value takes NaN", LastValue, []float64{1, nan}, nil, nan},
		{"min", Min, []float64{3, nan, 1, 2}, nil, 1},
		{"max", Max, []float64{3, nan, 7, 2}, nil, 7},
		{"min all NaN", Min, []float64{nan, nan}, nil, nan},
		{"sum missing is zero", Sum, []float64{1, nan, 2}, nil, 3},
		{"sum empty", Sum, nil, nil, 0},
		{"average skips NaN", Average, []float64{2, nan, 4}, nil, 3},
		{"average all NaN", Average, []float64{nan}, nil, nan},
		{"weighted", WeightedAverage, []float64{10, 20}, []float64{1, 3}, 17.5},
		{"weighted skips missing weight", WeightedAverage, []float64{10, 20, 100}, []float64{1, 1, nan}, 15},
		{"weighted zero weights", WeightedAverage, []float64{10, 20}, []float64{0, 0}, nan},
		{"weighted without weights column", WeightedAverage, []float64{10, 20}, nil, 15},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := run(t, tc.typ, tc.values, tc.weights)
			if got := a.Value(); !sameFloat(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAggregator_ResetStartsNewBucket(t *testing.T) {
	a, _ := New(Max, 1, NoColumn)
	a.Add(10, nan)
	a.Reset()
	a.Add(3, nan)
	if a.Value() != 3 {
		t.Fatalf("expected 3 after reset, got %v", a.Value())
	}
}

func TestList_CollectsRawValues(t *testing.T) {
	a := run(t, List, []float64{1, nan, 3}, nil)
	got := a.List()
	if len(got) != 3 || got[0] != 1 || !math.IsNaN(got[1]) || got[2] != 3 {
		t.Fatalf("unexpected list %v", got)
	}
	a.Reset()
	if len(a.List()) != 0 {
		t.Fatal("list should be empty after reset")
	}
	if len(got) != 3 {
		t.Fatal("reset must not clobber a previously returned list")
	}
}

func TestWeightedWithoutWeightsIsAverage(t *testing.T) {
	a, err := New(WeightedAverage, 4, NoColumn)
	if err != nil {
		t.Fatal(err)
	}
	if a.Type() != Average {
		t.Fatalf("expected average fallback, got %s", a.Type())
	}
	if Hash(WeightedAverage, 4, NoColumn) != Hash(Average, 4, NoColumn) {
		t.Fatal("fallback must share the average hash")
	}
}

func TestHash_Injective(t *testing.T) {
	types := []Type{First, Last, FirstValue, LastValue, Min, Max, Sum, Average, WeightedAverage, List}
	seen := map[string]string{}
	for _, typ := range types {
		for col := 0; col < 12; col++ {
			for w := -1; w < 12; w++ {
				if typ != WeightedAverage && w >= 0 {
					continue
				}
				if typ == WeightedAverage && w < 0 {
					continue
				}
				h := Hash(typ, col, w)
				key := string(typ) + "/" + string(rune('a'+col)) + "/" + string(rune('a'+w+1))
				if prev, ok := seen[h]; ok && prev != key {
					t.Fatalf("hash collision %q: %s vs %s", h, prev, key)
				}
				seen[h] = key
			}
		}
	}
	if Hash(Sum, 1, NoColumn) == Hash(Sum, 11, NoColumn) {
		t.Fatal("column digits must not collide")
	}
	if Hash(WeightedAverage, 1, 12) == Hash(WeightedAverage, 11, 2) {
		t.Fatal("separator must keep columns apart")
	}
}

func TestParseType(t *testing.T) {
	cases := map[string]Type{
		"sum":              Sum,
		"SUM":              Sum,
		" weighted-average": WeightedAverage,
		"open":             FirstValue,
		"close":            LastValue,
		"high":             Max,
		"low":              Min,
		"list":             List,
	}
	for in, want := range cases {
		got, err := ParseType(in)
		if err != nil || got != want {
			t.Fatalf("ParseType(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseType("median"); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestNew_InvalidArguments(t *testing.T) {
	if _, err := New(Sum, -1, NoColumn); err == nil {
		t.Fatal("negative column should fail")
	}
	if _, err := New("median", 1, NoColumn); err == nil {
		t.Fatal("unknown type should fail")
	}
}
