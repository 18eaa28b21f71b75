package indicator

import (
	"math"

	"github.com/AnyChart/AnyChart-sub039/internal/ringbuf"
	"github.com/AnyChart/AnyChart-sub039/internal/table"
)

// EMAContext holds an exponential moving average. The first Period values
// seed it with their simple mean; afterwards each value moves it by Alpha.
// The modified (Wilder) moving average is the same recurrence with
// Alpha = 1/Period.
type EMAContext struct {
	Queue  *ringbuf.Queue
	Period int
	Alpha  float64
	Prev   float64
}

// NewEMAContext uses Alpha = 2/(period+1).
func NewEMAContext(period int) *EMAContext {
	return &EMAContext{Queue: ringbuf.MustNew(period), Period: period, Alpha: 2 / float64(period+1), Prev: math.NaN()}
}

// NewMMAContext uses Alpha = 1/period.
func NewMMAContext(period int) *EMAContext {
	return &EMAContext{Queue: ringbuf.MustNew(period), Period: period, Alpha: 1 / float64(period), Prev: math.NaN()}
}

// StartEMA resets ctx for a full replay.
func StartEMA(ctx *EMAContext) {
	ctx.Queue.Clear()
	ctx.Prev = math.NaN()
}

// CalculateEMA feeds value and returns the average, NaN until Period values
// have been seen.
func CalculateEMA(ctx *EMAContext, value float64) float64 {
	if math.IsNaN(value) {
		return math.NaN()
	}
	if !math.IsNaN(ctx.Prev) {
		ctx.Prev += ctx.Alpha * (value - ctx.Prev)
		return ctx.Prev
	}
	ctx.Queue.Enqueue(value)
	if ctx.Queue.Len() < ctx.Period {
		return math.NaN()
	}
	ctx.Prev = ctx.Queue.Sum() / float64(ctx.Period)
	return ctx.Prev
}

// SetupEMA writes EMA(period) of source into output.
func SetupEMA(t *table.Table, m *table.Mapping, source, output string, period int) (*table.Computer, error) {
	if err := checkPeriod("ema", period); err != nil {
		return nil, err
	}
	return setupExp(t, m, source, output, func() *EMAContext { return NewEMAContext(period) })
}

// SetupMMA writes the modified moving average MMA(period) of source into
// output.
func SetupMMA(t *table.Table, m *table.Mapping, source, output string, period int) (*table.Computer, error) {
	if err := checkPeriod("mma", period); err != nil {
		return nil, err
	}
	return setupExp(t, m, source, output, func() *EMAContext { return NewMMAContext(period) })
}

func setupExp(t *table.Table, m *table.Mapping, source, output string, newCtx func() *EMAContext) (*table.Computer, error) {
	return bind(t, m, []string{output}, newCtx, StartEMA,
		func(r *table.ComputerRow, ctx *EMAContext) {
			r.Set(output, CalculateEMA(ctx, r.Get(source)))
		})
}
