package table

import (
	"fmt"
	"time"

	"github.com/AnyChart/AnyChart-sub039/internal/aggregator"
	"github.com/AnyChart/AnyChart-sub039/internal/model"
)

// IntervalGenerator produces aligned bucket boundaries. Start aligns a key
// down to its bucket start and Next returns the following boundary.
type IntervalGenerator interface {
	Start(key int64) int64
	Next() int64
	Hash() string
}

const noInterval = "none"

type pending uint8

const (
	upToDate pending = iota
	rightAppends
	rebuild
)

// aggStorage is one cached aggregation of the main storage.
type aggStorage struct {
	gen     IntervalGenerator // nil groups by distinct key
	rows    []*Row
	aggs    []aggregator.Aggregator
	lists   bool
	pending pending
	states  map[*Computer]*computeState
}

// GetAggregated returns the main storage rolled up into the buckets of g.
// A nil g yields one bucket per distinct key. Empty buckets are omitted.
//
// Results are cached per g.Hash() and refreshed after commits: tail appends
// re-aggregate from the last bucket on, anything else rebuilds.
func (t *Table) GetAggregated(g IntervalGenerator) (Storage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, err := t.aggregated(g)
	if err != nil {
		return nil, err
	}
	return rowsStorage{rows: s.rows, aggregated: true}, nil
}

func intervalHash(g IntervalGenerator) string {
	if g == nil {
		return noInterval
	}
	return g.Hash()
}

func (t *Table) aggregated(g IntervalGenerator) (*aggStorage, error) {
	if err := t.computeMain(); err != nil {
		return nil, err
	}
	hash := intervalHash(g)
	var s *aggStorage
	if v, ok := t.cache.Get(hash); ok {
		s = v.(*aggStorage)
	} else {
		s = &aggStorage{gen: g, pending: rebuild, states: make(map[*Computer]*computeState)}
		t.cache.Add(hash, s)
	}
	if len(s.aggs) != len(t.aggSpecs) {
		s.pending = rebuild
	}

	changed := s.pending != upToDate
	if changed {
		start := time.Now()
		rebuilt := s.pending == rebuild
		if rebuilt {
			if err := s.reset(t.aggSpecs); err != nil {
				return nil, err
			}
			s.rows = s.aggregate(t.rows, nil)
		} else {
			s.appendTail(t.rows)
		}
		s.pending = upToDate
		took := time.Since(start)
		if t.obs != nil {
			t.obs.ObserveAggregation(hash, rebuilt, len(s.rows), took)
		}
		t.log.Debug("table aggregate", "interval", hash, "rebuilt", rebuilt, "buckets", len(s.rows), "took", took)
	}

	for _, c := range t.computers {
		if !c.configured() {
			if len(c.outputs) > 0 {
				return nil, fmt.Errorf("computer %v not configured: %w", c.order, ErrIllegalState)
			}
			continue
		}
		full, n := c.run(s.states, s.rows, changed)
		if n > 0 && t.obs != nil {
			t.obs.ObserveReplay(full, n)
		}
	}
	return s, nil
}

// markAggregates records a commit on every cached storage.
func (t *Table) markAggregates(tail bool) {
	for _, k := range t.cache.Keys() {
		v, ok := t.cache.Peek(k)
		if !ok {
			continue
		}
		s := v.(*aggStorage)
		switch {
		case s.pending == rebuild:
		case tail:
			s.pending = rightAppends
		default:
			s.pending = rebuild
		}
	}
}

func (s *aggStorage) reset(specs []aggSpec) error {
	s.aggs = s.aggs[:0]
	s.lists = false
	for _, sp := range specs {
		a, err := aggregator.New(sp.typ, sp.col, sp.weights)
		if err != nil {
			return err
		}
		if a.Type() == aggregator.List {
			s.lists = true
		}
		s.aggs = append(s.aggs, a)
	}
	return nil
}

// appendTail re-aggregates from the start of the last bucket onwards.
func (s *aggStorage) appendTail(src []*Row) {
	if len(s.rows) == 0 {
		s.rows = s.aggregate(src, nil)
		return
	}
	keep := s.rows[:len(s.rows)-1 : len(s.rows)-1]
	from := lowerBound(src, s.rows[len(s.rows)-1].key)
	s.rows = s.aggregate(src[from:], keep)
}

// aggregate walks src once, feeding every aggregator per row, and appends
// one row per non-empty bucket to out.
func (s *aggStorage) aggregate(src []*Row, out []*Row) []*Row {
	var (
		open            bool
		bucket, nextKey int64
	)
	emit := func() {
		r := &Row{key: bucket, seq: uint64(len(out)), values: make([]float64, len(s.aggs)), aggregated: true}
		if s.lists {
			r.lists = make([][]float64, len(s.aggs))
		}
		for i, a := range s.aggs {
			r.values[i] = a.Value()
			if s.lists {
				r.lists[i] = a.List()
			}
			a.Reset()
		}
		out = append(out, r)
	}
	for _, r := range src {
		fresh := !open
		if open {
			if s.gen == nil {
				fresh = r.key != bucket
			} else {
				fresh = r.key >= nextKey
			}
		}
		if fresh {
			if open {
				emit()
			}
			open = true
			if s.gen == nil {
				bucket = r.key
			} else {
				bucket = s.gen.Start(r.key)
				nextKey = s.gen.Next()
			}
		}
		for _, a := range s.aggs {
			w := 0.0
			if wc := a.WeightsColumn(); wc >= 0 {
				w = r.Column(wc)
			}
			a.Add(r.Column(a.Column()), w)
		}
	}
	if open {
		emit()
	}
	return out
}

// Records returns the rows of m with from <= key <= to, aggregated by g when
// g is not nil and taken from the main storage otherwise. The projection
// happens under the table lock so it is consistent with concurrent commits.
func (t *Table) Records(m *Mapping, g IntervalGenerator, from, to int64) ([]model.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var rows []*Row
	if g == nil {
		if err := t.computeMain(); err != nil {
			return nil, err
		}
		rows = t.rows
	} else {
		s, err := t.aggregated(g)
		if err != nil {
			return nil, err
		}
		rows = s.rows
	}
	sel := rowsStorage{rows: rows}.Select(from, to)
	out := make([]model.Record, 0, len(sel))
	for _, r := range sel {
		out = append(out, m.record(r))
	}
	return out, nil
}
