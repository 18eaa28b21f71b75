package indicator

import (
	"math"

	"github.com/AnyChart/AnyChart-sub039/internal/table"
)

// DefaultDeviation is the band width used when none is configured.
const DefaultDeviation = 2.0

// BBandsContext holds the window of Bollinger Bands: an SMA middle band and
// upper/lower bands Deviation population standard deviations away.
type BBandsContext struct {
	SMA       *SMAContext
	Deviation float64
}

func NewBBandsContext(period int, deviation float64) *BBandsContext {
	return &BBandsContext{SMA: NewSMAContext(period), Deviation: deviation}
}

func StartBBands(ctx *BBandsContext) { StartSMA(ctx.SMA) }

func CalculateBBands(ctx *BBandsContext, value float64) (upper, middle, lower float64) {
	middle = CalculateSMA(ctx.SMA, value)
	if math.IsNaN(middle) {
		return math.NaN(), math.NaN(), math.NaN()
	}
	var ss float64
	for _, v := range ctx.SMA.Queue.Values() {
		d := v - middle
		ss += d * d
	}
	width := ctx.Deviation * math.Sqrt(ss/float64(ctx.SMA.Period))
	return middle + width, middle, middle - width
}

// BBandsOutputs returns the output names used for name.
func BBandsOutputs(name string) []string {
	return []string{name + "_upper", name + "_middle", name + "_lower"}
}

// SetupBBands writes the bands of source into name_upper, name_middle and
// name_lower.
func SetupBBands(t *table.Table, m *table.Mapping, source, name string, period int, deviation float64) (*table.Computer, error) {
	if err := checkPeriod("bbands", period); err != nil {
		return nil, err
	}
	if deviation <= 0 {
		deviation = DefaultDeviation
	}
	out := BBandsOutputs(name)
	return bind(t, m, out,
		func() *BBandsContext { return NewBBandsContext(period, deviation) },
		StartBBands,
		func(r *table.ComputerRow, ctx *BBandsContext) {
			u, mid, l := CalculateBBands(ctx, r.Get(source))
			r.Set(out[0], u)
			r.Set(out[1], mid)
			r.Set(out[2], l)
		})
}
