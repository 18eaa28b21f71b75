package table

import "sort"

// SearchMode selects how Storage.Search resolves a key that is not present.
type SearchMode int

const (
	// Exact finds the first row with exactly the key.
	Exact SearchMode = iota
	// ExactOrPrev falls back to the last row before the key.
	ExactOrPrev
	// ExactOrNext falls back to the first row after the key.
	ExactOrNext
	// Nearest picks the closer neighbour, the earlier one on ties.
	Nearest
)

// Storage is a key-ordered, read-only sequence of rows. The main storage and
// every aggregated storage implement it.
type Storage interface {
	Len() int
	// At returns the row at index i or nil.
	At(i int) *Row
	// Ascend calls fn for every row in key order until fn returns false.
	Ascend(fn func(i int, r *Row) bool)
	// Search returns the index of the row matching key under mode.
	Search(key int64, mode SearchMode) (int, bool)
	// Select returns rows with from <= key <= to.
	Select(from, to int64) []*Row
	Rows() []*Row
	Aggregated() bool
}

type rowsStorage struct {
	rows       []*Row
	aggregated bool
}

func (s rowsStorage) Len() int { return len(s.rows) }

func (s rowsStorage) At(i int) *Row {
	if i < 0 || i >= len(s.rows) {
		return nil
	}
	return s.rows[i]
}

func (s rowsStorage) Ascend(fn func(i int, r *Row) bool) {
	for i, r := range s.rows {
		if !fn(i, r) {
			return
		}
	}
}

// lowerBound returns the index of the first row with key >= key.
func lowerBound(rows []*Row, key int64) int {
	return sort.Search(len(rows), func(i int) bool { return rows[i].key >= key })
}

// upperBound returns the index of the first row with key > key.
func upperBound(rows []*Row, key int64) int {
	return sort.Search(len(rows), func(i int) bool { return rows[i].key > key })
}

func (s rowsStorage) Search(key int64, mode SearchMode) (int, bool) {
	n := len(s.rows)
	i := lowerBound(s.rows, key)
	if i < n && s.rows[i].key == key {
		return i, true
	}
	switch mode {
	case ExactOrPrev:
		if i > 0 {
			return upperBound(s.rows, s.rows[i-1].key) - 1, true
		}
	case ExactOrNext:
		if i < n {
			return i, true
		}
	case Nearest:
		switch {
		case i == 0 && n > 0:
			return 0, true
		case i == n && n > 0:
			return n - 1, true
		case n > 0:
			if key-s.rows[i-1].key <= s.rows[i].key-key {
				return i - 1, true
			}
			return i, true
		}
	}
	return -1, false
}

func (s rowsStorage) Select(from, to int64) []*Row {
	if from > to {
		return nil
	}
	lo := lowerBound(s.rows, from)
	hi := upperBound(s.rows, to)
	return s.rows[lo:hi:hi]
}

func (s rowsStorage) Rows() []*Row     { return s.rows[:len(s.rows):len(s.rows)] }
func (s rowsStorage) Aggregated() bool { return s.aggregated }
