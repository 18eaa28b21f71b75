package indicator

import (
	"math"

	"github.com/AnyChart/AnyChart-sub039/internal/ringbuf"
	"github.com/AnyChart/AnyChart-sub039/internal/table"
)

// LagContext keeps the last Period+1 values so the current value can be
// compared with the one Period rows back.
type LagContext struct {
	Queue *ringbuf.Queue
}

func NewLagContext(period int) *LagContext {
	return &LagContext{Queue: ringbuf.MustNew(period + 1)}
}

func StartLag(ctx *LagContext) { ctx.Queue.Clear() }

// lagged enqueues value and returns the value Period rows back.
func lagged(ctx *LagContext, value float64) (float64, bool) {
	ctx.Queue.Enqueue(value)
	if !ctx.Queue.Full() {
		return math.NaN(), false
	}
	return ctx.Queue.Get(0)
}

// CalculateMomentum returns value - value[-Period].
func CalculateMomentum(ctx *LagContext, value float64) float64 {
	if math.IsNaN(value) {
		return math.NaN()
	}
	old, ok := lagged(ctx, value)
	if !ok {
		return math.NaN()
	}
	return value - old
}

// CalculateROC returns the rate of change in percent, NaN on a zero base.
func CalculateROC(ctx *LagContext, value float64) float64 {
	if math.IsNaN(value) {
		return math.NaN()
	}
	old, ok := lagged(ctx, value)
	if !ok || old == 0 {
		return math.NaN()
	}
	return 100 * (value - old) / old
}

// SetupROC writes ROC(period) of source into output.
func SetupROC(t *table.Table, m *table.Mapping, source, output string, period int) (*table.Computer, error) {
	if err := checkPeriod("roc", period); err != nil {
		return nil, err
	}
	return setupLag(t, m, source, output, period, CalculateROC)
}

// SetupMomentum writes Momentum(period) of source into output.
func SetupMomentum(t *table.Table, m *table.Mapping, source, output string, period int) (*table.Computer, error) {
	if err := checkPeriod("momentum", period); err != nil {
		return nil, err
	}
	return setupLag(t, m, source, output, period, CalculateMomentum)
}

func setupLag(t *table.Table, m *table.Mapping, source, output string, period int,
	calc func(*LagContext, float64) float64) (*table.Computer, error) {
	return bind(t, m, []string{output},
		func() *LagContext { return NewLagContext(period) },
		StartLag,
		func(r *table.ComputerRow, ctx *LagContext) {
			r.Set(output, calc(ctx, r.Get(source)))
		})
}
