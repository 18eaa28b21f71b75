package indicator

import (
	"math"

	"github.com/AnyChart/AnyChart-sub039/internal/ringbuf"
	"github.com/AnyChart/AnyChart-sub039/internal/table"
)

// SMAContext holds the sliding window of a simple moving average.
// O(1) per update: the running mean is corrected by the evicted value.
type SMAContext struct {
	Queue  *ringbuf.Queue
	Period int
	Prev   float64
}

// NewSMAContext creates a context for period values. Period must be >= 1.
func NewSMAContext(period int) *SMAContext {
	return &SMAContext{Queue: ringbuf.MustNew(period), Period: period, Prev: math.NaN()}
}

// StartSMA resets ctx for a full replay.
func StartSMA(ctx *SMAContext) {
	ctx.Queue.Clear()
	ctx.Prev = math.NaN()
}

// CalculateSMA feeds value and returns the mean of the last Period values,
// NaN while the window fills.
func CalculateSMA(ctx *SMAContext, value float64) float64 {
	if math.IsNaN(value) {
		return math.NaN()
	}
	evicted, _ := ctx.Queue.Enqueue(value)
	if ctx.Queue.Len() < ctx.Period {
		return math.NaN()
	}
	p := float64(ctx.Period)
	if math.IsNaN(ctx.Prev) {
		ctx.Prev = ctx.Queue.Sum() / p
	} else {
		ctx.Prev += (value - evicted) / p
	}
	return ctx.Prev
}

// SetupSMA writes SMA(period) of source into output.
func SetupSMA(t *table.Table, m *table.Mapping, source, output string, period int) (*table.Computer, error) {
	if err := checkPeriod("sma", period); err != nil {
		return nil, err
	}
	return bind(t, m, []string{output},
		func() *SMAContext { return NewSMAContext(period) },
		StartSMA,
		func(r *table.ComputerRow, ctx *SMAContext) {
			r.Set(output, CalculateSMA(ctx, r.Get(source)))
		})
}
