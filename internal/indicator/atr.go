package indicator

import (
	"math"

	"github.com/AnyChart/AnyChart-sub039/internal/table"
)

// ATRContext averages the true range over Period rows. The first row's true
// range is high - low; later rows also span the previous close.
type ATRContext struct {
	SMA       *SMAContext
	PrevClose float64
}

func NewATRContext(period int) *ATRContext {
	return &ATRContext{SMA: NewSMAContext(period), PrevClose: math.NaN()}
}

func StartATR(ctx *ATRContext) {
	StartSMA(ctx.SMA)
	ctx.PrevClose = math.NaN()
}

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|), or
// high-low when prevClose is NaN.
func TrueRange(high, low, prevClose float64) float64 {
	tr := high - low
	if math.IsNaN(prevClose) {
		return tr
	}
	return math.Max(tr, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

func CalculateATR(ctx *ATRContext, high, low, cls float64) float64 {
	if anyNaN(high, low, cls) {
		return math.NaN()
	}
	tr := TrueRange(high, low, ctx.PrevClose)
	ctx.PrevClose = cls
	return CalculateSMA(ctx.SMA, tr)
}

// SetupATR writes ATR(period) into output.
func SetupATR(t *table.Table, m *table.Mapping, f OHLCV, output string, period int) (*table.Computer, error) {
	if err := checkPeriod("atr", period); err != nil {
		return nil, err
	}
	return bind(t, m, []string{output},
		func() *ATRContext { return NewATRContext(period) },
		StartATR,
		func(r *table.ComputerRow, ctx *ATRContext) {
			r.Set(output, CalculateATR(ctx, r.Get(f.High), r.Get(f.Low), r.Get(f.Close)))
		})
}
