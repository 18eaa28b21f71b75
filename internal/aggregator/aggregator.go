// Package aggregator implements the per-bucket reducers used when a table is
// rolled up into coarser time buckets.
//
// An Aggregator consumes one source value (and optionally a weight) per row
// and produces one value for the bucket. Missing values are NaN.
package aggregator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Type selects an aggregation strategy.
type Type string

const (
	First           Type = "first"
	Last            Type = "last"
	FirstValue      Type = "first-value"
	LastValue       Type = "last-value"
	Min             Type = "min"
	Max             Type = "max"
	Sum             Type = "sum"
	Average         Type = "average"
	WeightedAverage Type = "weighted-average"
	List            Type = "list"
)

// NoColumn marks an absent weights column.
const NoColumn = -1

var aliases = map[string]Type{
	"open":     FirstValue,
	"close":    LastValue,
	"high":     Max,
	"low":      Min,
	"avg":      Average,
	"mean":     Average,
	"weighted": WeightedAverage,
}

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	switch t {
	case First, Last, FirstValue, LastValue, Min, Max, Sum, Average, WeightedAverage, List:
		return true
	}
	return false
}

func (t Type) String() string { return string(t) }

// ParseType resolves a type literal or one of its aliases, case-insensitively.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if t := Type(s); t.Valid() {
		return t, nil
	}
	if t, ok := aliases[s]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown aggregation type %q", s)
}

// Hash identifies an aggregator configuration. Different (type, column,
// weights) triples never share a hash.
func Hash(t Type, col, weightsCol int) string {
	if t == WeightedAverage && weightsCol >= 0 {
		return string(t) + "|" + strconv.Itoa(col) + "|" + strconv.Itoa(weightsCol)
	}
	if t == WeightedAverage {
		t = Average
	}
	return string(t) + "|" + strconv.Itoa(col)
}

// Aggregator reduces the rows of one bucket into a single value.
type Aggregator interface {
	// Add consumes one row. weight is ignored by everything except
	// weighted-average.
	Add(value, weight float64)
	// Value returns the aggregate of the rows added since the last Reset.
	Value() float64
	// List returns the collected values for list aggregators, nil otherwise.
	List() []float64
	Reset()

	Type() Type
	Column() int
	WeightsColumn() int
}

// New builds an aggregator over column col. weightsCol is only used by
// WeightedAverage; without it the aggregator degrades to Average.
func New(t Type, col, weightsCol int) (Aggregator, error) {
	if col < 0 {
		return nil, fmt.Errorf("aggregator %s: invalid column %d", t, col)
	}
	b := base{typ: t, col: col, weights: NoColumn}
	var a Aggregator
	switch t {
	case First:
		a = &first{base: b}
	case Last:
		a = &last{base: b}
	case FirstValue:
		a = &firstValue{base: b}
	case LastValue:
		a = &lastValue{base: b}
	case Min:
		a = &extreme{base: b, less: func(x, y float64) bool { return x < y }}
	case Max:
		a = &extreme{base: b, less: func(x, y float64) bool { return x > y }}
	case Sum:
		a = &sum{base: b}
	case Average:
		a = &average{base: b}
	case WeightedAverage:
		if weightsCol < 0 {
			b.typ = Average
			a = &average{base: b}
			break
		}
		b.weights = weightsCol
		a = &weightedAverage{base: b}
	case List:
		a = &list{base: b}
	default:
		return nil, fmt.Errorf("unknown aggregation type %q", t)
	}
	a.Reset()
	return a, nil
}

type base struct {
	typ     Type
	col     int
	weights int
}

func (b base) Type() Type         { return b.typ }
func (b base) Column() int        { return b.col }
func (b base) WeightsColumn() int { return b.weights }
func (b base) List() []float64    { return nil }

type first struct {
	base
	v    float64
	seen bool
}

func (a *first) Add(v, _ float64) {
	if !a.seen && !math.IsNaN(v) {
		a.v = v
		a.seen = true
	}
}
func (a *first) Value() float64 { return a.v }
func (a *first) Reset()         { a.v, a.seen = math.NaN(), false }

type last struct {
	base
	v float64
}

func (a *last) Add(v, _ float64) {
	if !math.IsNaN(v) {
		a.v = v
	}
}
func (a *last) Value() float64 { return a.v }
func (a *last) Reset()         { a.v = math.NaN() }

type firstValue struct {
	base
	v    float64
	seen bool
}

func (a *firstValue) Add(v, _ float64) {
	if !a.seen {
		a.v = v
		a.seen = true
	}
}
func (a *firstValue) Value() float64 { return a.v }
func (a *firstValue) Reset()         { a.v, a.seen = math.NaN(), false }

type lastValue struct {
	base
	v float64
}

func (a *lastValue) Add(v, _ float64) { a.v = v }
func (a *lastValue) Value() float64   { return a.v }
func (a *lastValue) Reset()           { a.v = math.NaN() }

type extreme struct {
	base
	less func(x, y float64) bool
	v    float64
}

func (a *extreme) Add(v, _ float64) {
	if math.IsNaN(v) {
		return
	}
	if math.IsNaN(a.v) || a.less(v, a.v) {
		a.v = v
	}
}
func (a *extreme) Value() float64 { return a.v }
func (a *extreme) Reset()         { a.v = math.NaN() }

type sum struct {
	base
	v float64
}

func (a *sum) Add(v, _ float64) {
	if !math.IsNaN(v) {
		a.v += v
	}
}
func (a *sum) Value() float64 { return a.v }
func (a *sum) Reset()         { a.v = 0 }

type average struct {
	base
	sum float64
	n   int
}

func (a *average) Add(v, _ float64) {
	if !math.IsNaN(v) {
		a.sum += v
		a.n++
	}
}

func (a *average) Value() float64 {
	if a.n == 0 {
		return math.NaN()
	}
	return a.sum / float64(a.n)
}
func (a *average) Reset() { a.sum, a.n = 0, 0 }

type weightedAverage struct {
	base
	sum, weights float64
}

func (a *weightedAverage) Add(v, w float64) {
	if math.IsNaN(v) || math.IsNaN(w) {
		return
	}
	a.sum += v * w
	a.weights += w
}

func (a *weightedAverage) Value() float64 {
	if a.weights == 0 {
		return math.NaN()
	}
	return a.sum / a.weights
}
func (a *weightedAverage) Reset() { a.sum, a.weights = 0, 0 }

type list struct {
	base
	vals []float64
}

func (a *list) Add(v, _ float64) { a.vals = append(a.vals, v) }

// Value of a list aggregator is its element count.
func (a *list) Value() float64  { return float64(len(a.vals)) }
func (a *list) List() []float64 { return a.vals }

// Reset hands the collected slice to the caller of List and starts a new one.
func (a *list) Reset() { a.vals = nil }
