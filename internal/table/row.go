package table

import "math"

// Row is an immutable stored row. Main-storage rows carry one value per
// declared column (column 0 mirrors the key); aggregated rows carry one value
// per registered aggregator. Both carry computed slots written by computers.
type Row struct {
	key        int64
	seq        uint64
	values     []float64
	lists      [][]float64
	computed   []float64
	aggregated bool
}

func rowLess(a, b *Row) bool {
	if a.key != b.key {
		return a.key < b.key
	}
	return a.seq < b.seq
}

// Key returns the row key (bucket start for aggregated rows).
func (r *Row) Key() int64 { return r.key }

// Seq returns the insertion sequence number. Aggregated rows use their
// bucket ordinal.
func (r *Row) Seq() uint64 { return r.seq }

// Aggregated reports whether the row belongs to an aggregated storage.
func (r *Row) Aggregated() bool { return r.aggregated }

// Column returns the raw value at column i (aggregator i for aggregated
// rows), NaN when i is out of range.
func (r *Row) Column(i int) float64 {
	if i < 0 || i >= len(r.values) {
		return math.NaN()
	}
	return r.values[i]
}

// Values returns a copy of the raw values.
func (r *Row) Values() []float64 { return append([]float64(nil), r.values...) }

// Computed returns the value behind a computed column handle. The read is
// not synchronized with commits; use Mapping.Value from other goroutines.
func (r *Row) Computed(handle int) float64 {
	if handle >= 0 {
		return math.NaN()
	}
	return r.computedSlot(^handle)
}

func (r *Row) computedSlot(slot int) float64 {
	if slot >= len(r.computed) {
		return math.NaN()
	}
	return r.computed[slot]
}

func (r *Row) setComputed(slot int, v float64) {
	if slot >= len(r.computed) {
		grown := make([]float64, slot+1)
		copy(grown, r.computed)
		for i := len(r.computed); i < len(grown); i++ {
			grown[i] = math.NaN()
		}
		r.computed = grown
	}
	r.computed[slot] = v
}

func (r *Row) list(i int) []float64 {
	if i < 0 || i >= len(r.lists) {
		return nil
	}
	return r.lists[i]
}
