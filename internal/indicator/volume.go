package indicator

import (
	"math"

	"github.com/AnyChart/AnyChart-sub039/internal/table"
)

// OBVContext accumulates On-Balance Volume starting at zero.
type OBVContext struct {
	PrevClose float64
	Total     float64
}

func NewOBVContext() *OBVContext { return &OBVContext{PrevClose: math.NaN()} }

func StartOBV(ctx *OBVContext) {
	ctx.PrevClose = math.NaN()
	ctx.Total = 0
}

// CalculateOBV adds volume on an up close and subtracts it on a down close.
func CalculateOBV(ctx *OBVContext, cls, volume float64) float64 {
	if anyNaN(cls, volume) {
		return math.NaN()
	}
	switch {
	case math.IsNaN(ctx.PrevClose):
	case cls > ctx.PrevClose:
		ctx.Total += volume
	case cls < ctx.PrevClose:
		ctx.Total -= volume
	}
	ctx.PrevClose = cls
	return ctx.Total
}

// VWAPContext accumulates price*volume and volume since the last replay.
type VWAPContext struct {
	PV     float64
	Volume float64
}

func NewVWAPContext() *VWAPContext { return &VWAPContext{} }

func StartVWAP(ctx *VWAPContext) { *ctx = VWAPContext{} }

// CalculateVWAP weights the typical price (high+low+close)/3 by volume. It
// is NaN while no volume has traded.
func CalculateVWAP(ctx *VWAPContext, high, low, cls, volume float64) float64 {
	if anyNaN(high, low, cls, volume) {
		return math.NaN()
	}
	ctx.PV += (high + low + cls) / 3 * volume
	ctx.Volume += volume
	if ctx.Volume == 0 {
		return math.NaN()
	}
	return ctx.PV / ctx.Volume
}

// SetupOBV writes On-Balance Volume into output.
func SetupOBV(t *table.Table, m *table.Mapping, f OHLCV, output string) (*table.Computer, error) {
	return bind(t, m, []string{output}, NewOBVContext, StartOBV,
		func(r *table.ComputerRow, ctx *OBVContext) {
			r.Set(output, CalculateOBV(ctx, r.Get(f.Close), r.Get(f.Volume)))
		})
}

// SetupVWAP writes the cumulative VWAP into output.
func SetupVWAP(t *table.Table, m *table.Mapping, f OHLCV, output string) (*table.Computer, error) {
	return bind(t, m, []string{output}, NewVWAPContext, StartVWAP,
		func(r *table.ComputerRow, ctx *VWAPContext) {
			r.Set(output, CalculateVWAP(ctx, r.Get(f.High), r.Get(f.Low), r.Get(f.Close), r.Get(f.Volume)))
		})
}
