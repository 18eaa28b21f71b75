package indicator

import (
	"math"

	"github.com/AnyChart/AnyChart-sub039/internal/table"
)

// cciConstant scales the mean deviation so that most values fall within
// [-100, 100].
const cciConstant = 0.015

// CCIContext holds the typical-price window of the Commodity Channel Index.
type CCIContext struct {
	SMA *SMAContext
}

func NewCCIContext(period int) *CCIContext {
	return &CCIContext{SMA: NewSMAContext(period)}
}

func StartCCI(ctx *CCIContext) { StartSMA(ctx.SMA) }

// CalculateCCI returns (tp - sma(tp)) / (0.015 * meanDeviation) with
// tp = (high+low+close)/3. A flat window has no deviation and yields NaN.
func CalculateCCI(ctx *CCIContext, high, low, cls float64) float64 {
	if anyNaN(high, low, cls) {
		return math.NaN()
	}
	tp := (high + low + cls) / 3
	mean := CalculateSMA(ctx.SMA, tp)
	if math.IsNaN(mean) {
		return math.NaN()
	}
	var dev float64
	for _, v := range ctx.SMA.Queue.Values() {
		dev += math.Abs(v - mean)
	}
	dev /= float64(ctx.SMA.Period)
	if dev == 0 {
		return math.NaN()
	}
	return (tp - mean) / (cciConstant * dev)
}

// SetupCCI writes CCI(period) into output.
func SetupCCI(t *table.Table, m *table.Mapping, f OHLCV, output string, period int) (*table.Computer, error) {
	if err := checkPeriod("cci", period); err != nil {
		return nil, err
	}
	return bind(t, m, []string{output},
		func() *CCIContext { return NewCCIContext(period) },
		StartCCI,
		func(r *table.ComputerRow, ctx *CCIContext) {
			r.Set(output, CalculateCCI(ctx, r.Get(f.High), r.Get(f.Low), r.Get(f.Close)))
		})
}
