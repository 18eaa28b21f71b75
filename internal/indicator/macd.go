package indicator

import (
	"fmt"
	"math"

	"github.com/AnyChart/AnyChart-sub039/internal/table"
)

// Default MACD periods.
const (
	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
)

// MACDContext chains three EMAs: fast and slow over the source and the
// signal line over their difference.
type MACDContext struct {
	Fast, Slow, Signal *EMAContext
}

func NewMACDContext(fast, slow, signal int) *MACDContext {
	return &MACDContext{Fast: NewEMAContext(fast), Slow: NewEMAContext(slow), Signal: NewEMAContext(signal)}
}

func StartMACD(ctx *MACDContext) {
	StartEMA(ctx.Fast)
	StartEMA(ctx.Slow)
	StartEMA(ctx.Signal)
}

// CalculateMACD returns the MACD line, the signal line and the histogram.
func CalculateMACD(ctx *MACDContext, value float64) (macd, signal, hist float64) {
	if math.IsNaN(value) {
		return math.NaN(), math.NaN(), math.NaN()
	}
	macd = CalculateEMA(ctx.Fast, value) - CalculateEMA(ctx.Slow, value)
	signal = CalculateEMA(ctx.Signal, macd)
	return macd, signal, macd - signal
}

// MACDOutputs returns the output names used for name.
func MACDOutputs(name string) []string {
	return []string{name, name + "_signal", name + "_hist"}
}

// SetupMACD writes MACD(fast, slow, signal) of source into name,
// name_signal and name_hist.
func SetupMACD(t *table.Table, m *table.Mapping, source, name string, fast, slow, signal int) (*table.Computer, error) {
	for _, p := range []int{fast, slow, signal} {
		if err := checkPeriod("macd", p); err != nil {
			return nil, err
		}
	}
	if fast >= slow {
		return nil, fmt.Errorf("macd: fast=%d must be below slow=%d", fast, slow)
	}
	out := MACDOutputs(name)
	return bind(t, m, out,
		func() *MACDContext { return NewMACDContext(fast, slow, signal) },
		StartMACD,
		func(r *table.ComputerRow, ctx *MACDContext) {
			macd, sig, hist := CalculateMACD(ctx, r.Get(source))
			r.Set(out[0], macd)
			r.Set(out[1], sig)
			r.Set(out[2], hist)
		})
}
