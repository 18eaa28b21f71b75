package indicator

import (
	"math"

	"github.com/gammazero/deque"

	"github.com/AnyChart/AnyChart-sub039/internal/table"
)

type indexed struct {
	idx int
	v   float64
}

// AroonContext tracks the position of the highest high and lowest low over
// the last Period+1 rows with monotonic deques, O(1) amortised per row.
// Ties resolve to the most recent row.
type AroonContext struct {
	Period int
	n      int
	highs  *deque.Deque[indexed]
	lows   *deque.Deque[indexed]
}

func NewAroonContext(period int) *AroonContext {
	return &AroonContext{
		Period: period,
		highs:  deque.New[indexed](0, 64),
		lows:   deque.New[indexed](0, 64),
	}
}

func StartAroon(ctx *AroonContext) {
	ctx.n = 0
	ctx.highs.Clear()
	ctx.lows.Clear()
}

// push appends x keeping the deque monotonic under drop(back, x).
func push(d *deque.Deque[indexed], x indexed, drop func(back, x float64) bool, oldest int) {
	for d.Len() > 0 && drop(d.Back().v, x.v) {
		d.PopBack()
	}
	d.PushBack(x)
	for d.Front().idx < oldest {
		d.PopFront()
	}
}

// CalculateAroon returns Aroon Up, Aroon Down and the oscillator (up-down).
// All three are NaN until Period+1 rows have been seen.
func CalculateAroon(ctx *AroonContext, high, low float64) (up, down, osc float64) {
	if anyNaN(high, low) {
		return math.NaN(), math.NaN(), math.NaN()
	}
	i := ctx.n
	ctx.n++
	oldest := i - ctx.Period
	push(ctx.highs, indexed{i, high}, func(b, x float64) bool { return b <= x }, oldest)
	push(ctx.lows, indexed{i, low}, func(b, x float64) bool { return b >= x }, oldest)
	if ctx.n <= ctx.Period {
		return math.NaN(), math.NaN(), math.NaN()
	}
	p := float64(ctx.Period)
	up = 100 * (p - float64(i-ctx.highs.Front().idx)) / p
	down = 100 * (p - float64(i-ctx.lows.Front().idx)) / p
	return up, down, up - down
}

// AroonOutputs returns the output names used for name.
func AroonOutputs(name string) []string {
	return []string{name + "_up", name + "_down", name + "_osc"}
}

// SetupAroon writes Aroon(period) into name_up, name_down and name_osc.
func SetupAroon(t *table.Table, m *table.Mapping, f OHLCV, name string, period int) (*table.Computer, error) {
	if err := checkPeriod("aroon", period); err != nil {
		return nil, err
	}
	out := AroonOutputs(name)
	return bind(t, m, out,
		func() *AroonContext { return NewAroonContext(period) },
		StartAroon,
		func(r *table.ComputerRow, ctx *AroonContext) {
			up, down, osc := CalculateAroon(ctx, r.Get(f.High), r.Get(f.Low))
			r.Set(out[0], up)
			r.Set(out[1], down)
			r.Set(out[2], osc)
		})
}
