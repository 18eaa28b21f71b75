// Package indicator provides technical indicator calculations bound to a
// table as computers.
//
// Every indicator comes in two layers: a context type with a pure
// Calculate step that can be driven by hand, and a Setup function that
// registers a table.Computer reading source fields from a mapping and
// writing its outputs back into the same mapping. Missing inputs (NaN)
// produce a NaN output and leave the context untouched.
package indicator

import (
	"fmt"
	"math"

	"github.com/AnyChart/AnyChart-sub039/internal/table"
)

// OHLCV names the price fields multi-input indicators read.
type OHLCV struct {
	High   string
	Low    string
	Close  string
	Volume string
}

// DefaultOHLCV reads the conventional field names.
var DefaultOHLCV = OHLCV{High: "high", Low: "low", Close: "close", Volume: "volume"}

// bind registers a computer over m with a typed context and exposes every
// output under its own name in m. An output named like an existing field
// fails with table.ErrDuplicateField.
func bind[C any](t *table.Table, m *table.Mapping, outputs []string,
	newCtx func() C, start func(C), calc func(r *table.ComputerRow, c C)) (*table.Computer, error) {

	c := t.CreateComputer(m)
	c.SetContext(func() any { return newCtx() })
	c.SetStartFunction(func(ctx any) { start(ctx.(C)) })
	c.SetCalculationFunction(func(r *table.ComputerRow, ctx any) { calc(r, ctx.(C)) })
	for i, name := range outputs {
		h, err := c.AddOutputField(name)
		if err == nil {
			err = m.AddField(name, h, "")
		}
		if err != nil {
			t.DeregisterComputer(c)
			for _, n := range outputs[:i] {
				m.RemoveField(n)
			}
			return nil, fmt.Errorf("bind %s: %w", name, err)
		}
	}
	return c, nil
}

func checkPeriod(name string, period int) error {
	if period < 1 {
		return fmt.Errorf("%s: invalid period=%d (must be >= 1)", name, period)
	}
	return nil
}

func anyNaN(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
