package indicator

import (
	"math"

	"github.com/AnyChart/AnyChart-sub039/internal/ringbuf"
	"github.com/AnyChart/AnyChart-sub039/internal/table"
)

// WMAContext holds a linearly weighted moving average window. The newest
// value has weight Period, the oldest weight 1.
type WMAContext struct {
	Queue  *ringbuf.Queue
	Period int
}

func NewWMAContext(period int) *WMAContext {
	return &WMAContext{Queue: ringbuf.MustNew(period), Period: period}
}

func StartWMA(ctx *WMAContext) { ctx.Queue.Clear() }

// CalculateWMA feeds value and returns the weighted mean of the window.
func CalculateWMA(ctx *WMAContext, value float64) float64 {
	if math.IsNaN(value) {
		return math.NaN()
	}
	ctx.Queue.Enqueue(value)
	if !ctx.Queue.Full() {
		return math.NaN()
	}
	var sum float64
	for i := 0; i < ctx.Period; i++ {
		v, _ := ctx.Queue.Get(i)
		sum += v * float64(i+1)
	}
	p := float64(ctx.Period)
	return sum * 2 / (p * (p + 1))
}

// SetupWMA writes WMA(period) of source into output.
func SetupWMA(t *table.Table, m *table.Mapping, source, output string, period int) (*table.Computer, error) {
	if err := checkPeriod("wma", period); err != nil {
		return nil, err
	}
	return bind(t, m, []string{output},
		func() *WMAContext { return NewWMAContext(period) },
		StartWMA,
		func(r *table.ComputerRow, ctx *WMAContext) {
			r.Set(output, CalculateWMA(ctx, r.Get(source)))
		})
}
