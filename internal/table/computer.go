package table

import (
	"fmt"
	"math"
)

// Computer derives output columns from a mapping with a streaming
// calculation function.
//
// Every storage (the main one and each aggregated one) gets its own context
// from the context factory. After a structural change, after new outputs are
// added and for every aggregated rebuild, the start function runs once and the
// calculation function replays every row in key order. Commits that only
// append at the tail replay just the new main-storage rows on the existing
// context.
type Computer struct {
	t *Table
	m *Mapping

	newContext func() any
	start      func(ctx any)
	calc       func(r *ComputerRow, ctx any)

	outputs map[string]int // output name -> slot
	order   []string

	// version changes whenever the configuration does; stale contexts are
	// replaced by a full replay.
	version int
	removed bool
}

// computeState is the per-storage progress of one computer.
type computeState struct {
	ctx     any
	version int
	done    int // rows processed
	valid   bool
}

// CreateComputer returns an unconfigured computer bound to m.
func (t *Table) CreateComputer(m *Mapping) *Computer {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := &Computer{t: t, m: m, outputs: make(map[string]int)}
	t.computers = append(t.computers, c)
	return c
}

// DeregisterComputer detaches c. Its output names become free and its slots
// are recycled.
func (t *Table) DeregisterComputer(c *Computer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c.removed {
		return
	}
	c.removed = true
	for i, x := range t.computers {
		if x == c {
			t.computers = append(t.computers[:i:i], t.computers[i+1:]...)
			break
		}
	}
	for name, slot := range c.outputs {
		delete(t.aliases, name)
		t.freeSlots = append(t.freeSlots, slot)
	}
	delete(t.mainStates, c)
	for _, k := range t.cache.Keys() {
		if v, ok := t.cache.Peek(k); ok {
			delete(v.(*aggStorage).states, c)
		}
	}
}

// SetContext sets the factory producing a fresh context for each storage.
func (c *Computer) SetContext(factory func() any) {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	c.newContext = factory
	c.version++
}

// SetStartFunction sets the function resetting a context before a full
// replay.
func (c *Computer) SetStartFunction(fn func(ctx any)) {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	c.start = fn
	c.version++
}

// SetCalculationFunction sets the per-row function. It must read only the
// row and the context.
func (c *Computer) SetCalculationFunction(fn func(r *ComputerRow, ctx any)) {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	c.calc = fn
	c.version++
}

// AddOutputField declares an output and returns its column handle. Output
// names are unique across all computers of the table.
func (c *Computer) AddOutputField(name string) (int, error) {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	if c.removed {
		return 0, fmt.Errorf("add output %q: computer deregistered: %w", name, ErrIllegalState)
	}
	if _, ok := c.t.aliases[name]; ok {
		return 0, fmt.Errorf("output %q: %w", name, ErrDuplicateField)
	}
	slot := c.t.allocSlot()
	c.t.aliases[name] = c
	c.outputs[name] = slot
	c.order = append(c.order, name)
	c.version++
	return ^slot, nil
}

// FieldIndex returns the column handle of an output, for Mapping.AddField.
func (c *Computer) FieldIndex(name string) (int, bool) {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	slot, ok := c.outputs[name]
	if !ok {
		return 0, false
	}
	return ^slot, true
}

// Outputs returns the output names in declaration order.
func (c *Computer) Outputs() []string {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	return append([]string(nil), c.order...)
}

// Mapping returns the mapping the computer reads from.
func (c *Computer) Mapping() *Mapping { return c.m }

func (c *Computer) configured() bool {
	return c.start != nil && c.calc != nil
}

func (t *Table) allocSlot() int {
	if n := len(t.freeSlots); n > 0 {
		s := t.freeSlots[n-1]
		t.freeSlots = t.freeSlots[:n-1]
		return s
	}
	t.slots++
	return t.slots - 1
}

// ComputerRow is the view a calculation function gets of the current row.
type ComputerRow struct {
	c     *Computer
	row   *Row
	index int
}

// Get returns a mapping field or one of the computer's own outputs. Unknown
// names read as NaN.
func (r *ComputerRow) Get(name string) float64 {
	if slot, ok := r.c.outputs[name]; ok {
		return r.row.computedSlot(slot)
	}
	return r.c.m.value(r.row, name)
}

// Set writes an output of the computer. Names that are not outputs are
// ignored.
func (r *ComputerRow) Set(name string, v float64) {
	if slot, ok := r.c.outputs[name]; ok {
		r.row.setComputed(slot, v)
	}
}

// Key returns the row key.
func (r *ComputerRow) Key() int64 { return r.row.key }

// Index returns the row position within the storage being computed.
func (r *ComputerRow) Index() int { return r.index }

// replay runs c over rows[from:] and returns the number of rows processed.
func (c *Computer) replay(st *computeState, rows []*Row, from int) int {
	cr := ComputerRow{c: c}
	for i := from; i < len(rows); i++ {
		r := rows[i]
		for _, slot := range c.outputs {
			r.setComputed(slot, math.NaN())
		}
		cr.row, cr.index = r, i
		c.calc(&cr, st.ctx)
	}
	st.done = len(rows)
	return len(rows) - from
}

// run brings one storage up to date for c, replaying fully when the state is
// missing, stale or invalidated.
func (c *Computer) run(states map[*Computer]*computeState, rows []*Row, forceFull bool) (full bool, n int) {
	st := states[c]
	if forceFull || st == nil || !st.valid || st.version != c.version || st.done > len(rows) {
		st = &computeState{version: c.version, valid: true}
		if c.newContext != nil {
			st.ctx = c.newContext()
		}
		c.start(st.ctx)
		states[c] = st
		return true, c.replay(st, rows, 0)
	}
	if st.done == len(rows) {
		return false, 0
	}
	return false, c.replay(st, rows, st.done)
}

// computeMain brings every configured computer up to date on the main
// storage. It reports ErrIllegalState when a computer with outputs is missing
// its start or calculation function; the other computers still run.
func (t *Table) computeMain() error {
	var err error
	for _, c := range t.computers {
		if !c.configured() {
			if len(c.outputs) > 0 && err == nil {
				err = fmt.Errorf("computer %v not configured: %w", c.order, ErrIllegalState)
			}
			continue
		}
		full, n := c.run(t.mainStates, t.rows, false)
		if n > 0 && t.obs != nil {
			t.obs.ObserveReplay(full, n)
		}
	}
	return err
}
