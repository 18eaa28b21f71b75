package table

import (
	"fmt"
	"math"
	"sort"

	"github.com/AnyChart/AnyChart-sub039/internal/aggregator"
	"github.com/AnyChart/AnyChart-sub039/internal/model"
)

type fieldRef struct {
	column int // raw column, or ^slot for computed fields
	agg    int // aggregator registry index, -1 for computed fields
	typ    aggregator.Type
}

func (f fieldRef) computed() bool { return f.column < 0 }

// Mapping names the columns of a table. A field points at a raw column
// (aggregated with its aggregation type in aggregated storages) or at a
// computer output. Bindings and reads go through the table lock, so a
// mapping can be reconfigured while other goroutines read it.
type Mapping struct {
	t      *Table
	fields map[string]fieldRef
	order  []string
}

// DefaultAggregation is the aggregation used for a plain field of that name.
func DefaultAggregation(name string) aggregator.Type {
	switch name {
	case "open":
		return aggregator.FirstValue
	case "high":
		return aggregator.Max
	case "low":
		return aggregator.Min
	case "close":
		return aggregator.LastValue
	case "volume":
		return aggregator.Sum
	}
	return aggregator.Last
}

// MapAs creates a mapping of name -> column with default aggregations.
func (t *Table) MapAs(fields map[string]int) (*Mapping, error) {
	m := t.NewMapping()
	for _, name := range sortedNames(fields) {
		if err := m.AddField(name, fields[name], ""); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewMapping returns an empty mapping over t.
func (t *Table) NewMapping() *Mapping {
	return &Mapping{t: t, fields: make(map[string]fieldRef)}
}

// AddField binds name to column. For raw columns typ selects the
// aggregation, "" meaning DefaultAggregation(name). Computed columns
// (handles from Computer.FieldIndex) ignore typ. A name can be bound once;
// use SetField to rebind.
func (m *Mapping) AddField(name string, column int, typ aggregator.Type) error {
	return m.bind(name, column, typ, aggregator.NoColumn, false)
}

// AddWeightedField binds name to a weighted-average of column by weights.
func (m *Mapping) AddWeightedField(name string, column, weights int) error {
	return m.bind(name, column, aggregator.WeightedAverage, weights, false)
}

// SetField binds name like AddField, replacing an existing binding.
func (m *Mapping) SetField(name string, column int, typ aggregator.Type) error {
	return m.bind(name, column, typ, aggregator.NoColumn, true)
}

func (m *Mapping) bind(name string, column int, typ aggregator.Type, weights int, overwrite bool) error {
	t := m.t
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := m.fields[name]; ok && !overwrite {
		return fmt.Errorf("field %q: %w", name, ErrDuplicateField)
	}
	ref := fieldRef{column: column, agg: -1}
	if column < 0 {
		if !t.slotInUse(^column) {
			return fmt.Errorf("field %q: unknown computed column %d: %w", name, column, ErrOutOfRange)
		}
	} else {
		if column >= t.columns {
			return fmt.Errorf("field %q: column %d of %d: %w", name, column, t.columns, ErrOutOfRange)
		}
		if weights >= t.columns {
			return fmt.Errorf("field %q: weights column %d of %d: %w", name, weights, t.columns, ErrOutOfRange)
		}
		if typ == "" {
			typ = DefaultAggregation(name)
		}
		idx, err := t.registerAggregator(typ, column, weights)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		ref.agg = idx
		ref.typ = t.aggSpecs[idx].typ
	}
	if _, ok := m.fields[name]; !ok {
		m.order = append(m.order, name)
	}
	m.fields[name] = ref
	return nil
}

func (t *Table) slotInUse(slot int) bool {
	for _, c := range t.computers {
		for _, s := range c.outputs {
			if s == slot {
				return true
			}
		}
	}
	return false
}

// RemoveField unbinds name. Unknown names are ignored.
func (m *Mapping) RemoveField(name string) {
	m.t.mu.Lock()
	defer m.t.mu.Unlock()
	if _, ok := m.fields[name]; !ok {
		return
	}
	delete(m.fields, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
}

// Has reports whether name is bound.
func (m *Mapping) Has(name string) bool {
	m.t.mu.Lock()
	defer m.t.mu.Unlock()
	_, ok := m.fields[name]
	return ok
}

// Fields returns the bound names in binding order.
func (m *Mapping) Fields() []string {
	m.t.mu.Lock()
	defer m.t.mu.Unlock()
	return append([]string(nil), m.order...)
}

// Value reads field name from r; NaN when unbound or missing.
func (m *Mapping) Value(r *Row, name string) float64 {
	m.t.mu.Lock()
	defer m.t.mu.Unlock()
	return m.value(r, name)
}

// List returns the values collected by a list field of an aggregated row.
// For main-storage rows it returns the single raw value.
func (m *Mapping) List(r *Row, name string) []float64 {
	m.t.mu.Lock()
	defer m.t.mu.Unlock()
	return m.list(r, name)
}

// Record projects r through the mapping.
func (m *Mapping) Record(r *Row) model.Record {
	m.t.mu.Lock()
	defer m.t.mu.Unlock()
	return m.record(r)
}

// Records projects every row of s.
func (m *Mapping) Records(s Storage) []model.Record {
	m.t.mu.Lock()
	defer m.t.mu.Unlock()
	out := make([]model.Record, 0, s.Len())
	s.Ascend(func(_ int, r *Row) bool {
		out = append(out, m.record(r))
		return true
	})
	return out
}

// The lowercase readers expect t.mu to be held.

func (m *Mapping) value(r *Row, name string) float64 {
	f, ok := m.fields[name]
	if !ok || r == nil {
		return math.NaN()
	}
	switch {
	case f.computed():
		return r.computedSlot(^f.column)
	case r.aggregated:
		return r.Column(f.agg)
	default:
		return r.Column(f.column)
	}
}

func (m *Mapping) list(r *Row, name string) []float64 {
	f, ok := m.fields[name]
	if !ok || r == nil || f.computed() || f.typ != aggregator.List {
		return nil
	}
	if r.aggregated {
		return r.list(f.agg)
	}
	return []float64{r.Column(f.column)}
}

func (m *Mapping) record(r *Row) model.Record {
	rec := model.Record{Key: r.key, Values: make(map[string]float64, len(m.order))}
	for _, name := range m.order {
		if l := m.list(r, name); l != nil {
			if rec.Lists == nil {
				rec.Lists = make(map[string][]float64)
			}
			rec.Lists[name] = l
		}
		rec.Values[name] = m.value(r, name)
	}
	return rec
}

func sortedNames(fields map[string]int) []string {
	names := make([]string, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
