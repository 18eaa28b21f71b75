package redis

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	b := NewBreaker(threshold, time.Second)
	b.now = clk.now
	return b, clk
}

var errDown = errors.New("connection refused")

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3)
	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, b.Do(func() error { return errDown }), errDown)
	}
	assert.Equal(t, BreakerClosed, b.State())

	assert.ErrorIs(t, b.Do(func() error { return errDown }), errDown)
	assert.Equal(t, BreakerOpen, b.State())

	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.False(t, called)
}

func TestBreaker_ProbeClosesOnSuccess(t *testing.T) {
	b, clk := newTestBreaker(1)
	var moves []BreakerState
	b.OnTransition = func(_, to BreakerState) { moves = append(moves, to) }

	_ = b.Do(func() error { return errDown })
	clk.advance(500 * time.Millisecond)
	assert.ErrorIs(t, b.Do(func() error { return nil }), ErrBreakerOpen)

	clk.advance(600 * time.Millisecond)
	require.NoError(t, b.Do(func() error { return nil }))
	assert.Equal(t, BreakerClosed, b.State())
	assert.Equal(t, []BreakerState{BreakerOpen, BreakerProbing, BreakerClosed}, moves)
}

func TestBreaker_FailedProbeRestartsCooldown(t *testing.T) {
	b, clk := newTestBreaker(2)
	_ = b.Do(func() error { return errDown })
	_ = b.Do(func() error { return errDown })

	clk.advance(2 * time.Second)
	assert.ErrorIs(t, b.Do(func() error { return errDown }), errDown)
	assert.Equal(t, BreakerOpen, b.State())

	clk.advance(500 * time.Millisecond)
	assert.ErrorIs(t, b.Do(func() error { return nil }), ErrBreakerOpen)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(2)
	_ = b.Do(func() error { return errDown })
	_ = b.Do(func() error { return nil })
	_ = b.Do(func() error { return errDown })
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "probing", BreakerProbing.String())
	assert.Equal(t, "unknown", BreakerState(9).String())
}
