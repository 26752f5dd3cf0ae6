package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock lets tests step actuator time deterministically.
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestActuatorInterpolation(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	a := NewActuator(-45, 45, 10, 0)
	a.now = clk.now

	a.SetTarget(20)
	assert.True(t, a.Moving())
	assert.Equal(t, 0.0, a.Position())

	clk.advance(time.Second)
	assert.InDelta(t, 10, a.Position(), 1e-9)

	clk.advance(time.Second)
	assert.InDelta(t, 20, a.Position(), 1e-9)
	assert.False(t, a.Moving())

	// settled position stays put
	clk.advance(time.Hour)
	assert.InDelta(t, 20, a.Position(), 1e-9)
}

func TestActuatorClamp(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	a := NewActuator(0, 13000, 1000, 0)
	a.now = clk.now

	a.SetTarget(20000)
	assert.Equal(t, 13000.0, a.Target())

	clk.advance(time.Hour)
	assert.Equal(t, 13000.0, a.Position())

	a.SetTarget(-5)
	assert.Equal(t, 0.0, a.Target())
}

func TestActuatorRetargetMidMove(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	a := NewActuator(-45, 45, 10, 0)
	a.now = clk.now

	a.SetTarget(40)
	clk.advance(2 * time.Second) // at 20

	a.SetTarget(0) // reverse from the interpolated position
	assert.InDelta(t, 20, a.Position(), 1e-9)
	clk.advance(time.Second)
	assert.InDelta(t, 10, a.Position(), 1e-9)
}

func TestCircularShortestPath(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	c := NewCircularActuator(10, 350)
	c.now = clk.now

	// 350 -> 10 is a +20 move through zero, not -340
	c.SetTarget(10)
	assert.True(t, c.Moving())

	clk.advance(time.Second)
	assert.InDelta(t, 0, c.Position(), 1e-9)

	clk.advance(time.Second)
	assert.InDelta(t, 10, c.Position(), 1e-9)
	assert.False(t, c.Moving())
}

func TestCircularBackwardWrap(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	c := NewCircularActuator(10, 5)
	c.now = clk.now

	// 5 -> 355 is a -10 move through zero
	c.SetTarget(355)
	clk.advance(500 * time.Millisecond)
	assert.InDelta(t, 0, c.Position(), 1e-9)

	clk.advance(500 * time.Millisecond)
	assert.InDelta(t, 355, c.Position(), 1e-9)
	assert.Equal(t, 355.0, c.Target())
}
