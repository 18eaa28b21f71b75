package indicator

import (
	"math"

	"github.com/AnyChart/AnyChart-sub039/internal/table"
)

// RSIContext calculates the Relative Strength Index using Wilder's smoothing.
//
// Algorithm:
//  1. The first Period changes seed average gain and average loss with their
//     simple means.
//  2. Every later change smooths them: avg = avg + (x - avg) / Period.
//  3. RSI = 100 - 100 / (1 + avgGain/avgLoss); 100 when avgLoss is zero.
type RSIContext struct {
	Gain *EMAContext
	Loss *EMAContext
	Prev float64
}

func NewRSIContext(period int) *RSIContext {
	return &RSIContext{Gain: NewMMAContext(period), Loss: NewMMAContext(period), Prev: math.NaN()}
}

func StartRSI(ctx *RSIContext) {
	StartEMA(ctx.Gain)
	StartEMA(ctx.Loss)
	ctx.Prev = math.NaN()
}

// CalculateRSI feeds value and returns RSI, NaN for the first Period values.
func CalculateRSI(ctx *RSIContext, value float64) float64 {
	if math.IsNaN(value) {
		return math.NaN()
	}
	prev := ctx.Prev
	ctx.Prev = value
	if math.IsNaN(prev) {
		return math.NaN()
	}
	change := value - prev
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}
	avgGain := CalculateEMA(ctx.Gain, gain)
	avgLoss := CalculateEMA(ctx.Loss, loss)
	if math.IsNaN(avgGain) {
		return math.NaN()
	}
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

// SetupRSI writes RSI(period) of source into output.
func SetupRSI(t *table.Table, m *table.Mapping, source, output string, period int) (*table.Computer, error) {
	if err := checkPeriod("rsi", period); err != nil {
		return nil, err
	}
	return bind(t, m, []string{output},
		func() *RSIContext { return NewRSIContext(period) },
		StartRSI,
		func(r *table.ComputerRow, ctx *RSIContext) {
			r.Set(output, CalculateRSI(ctx, r.Get(source)))
		})
}
