// Package sim is a protocol-compatible stand-in for the projector
// hardware: a one-client TCP peer over a set of speed-limited actuators.
// It is used as the test double for the device client and as the
// reference for protocol correctness.
package sim

import (
	"math"
	"time"

	"github.com/opencalib/cbpctl/axis"
)

// Actuator simulates point-to-point motion at a constant speed between
// bounds. Position reads are interpolated against the wall clock, so a
// caller polling mid-move observes intermediate values.
type Actuator struct {
	Min, Max float64
	Speed    float64 // units per second, > 0

	start   float64
	target  float64
	started time.Time

	now func() time.Time // test hook
}

// NewActuator returns an at-rest actuator at start.
func NewActuator(min, max, speed, start float64) *Actuator {
	return &Actuator{
		Min:    min,
		Max:    max,
		Speed:  speed,
		start:  start,
		target: start,
		now:    time.Now,
	}
}

func (a *Actuator) duration() time.Duration {
	return time.Duration(math.Abs(a.target-a.start) / a.Speed * float64(time.Second))
}

// Position returns the interpolated position at the current time.
func (a *Actuator) Position() float64 {
	elapsed := a.now().Sub(a.started)
	total := a.duration()
	if elapsed >= total || total == 0 {
		return a.target
	}
	frac := float64(elapsed) / float64(total)
	return a.start + (a.target-a.start)*frac
}

// SetTarget starts a move from the current interpolated position to v,
// silently clamped into bounds. The client side rejects out-of-range
// values before they reach the wire; the firmware saturates instead, and
// the simulator models the firmware.
func (a *Actuator) SetTarget(v float64) {
	p := a.Position()
	a.start = p
	a.target = math.Min(math.Max(v, a.Min), a.Max)
	a.started = a.now()
}

// Target returns the commanded end position.
func (a *Actuator) Target() float64 { return a.target }

// Moving reports whether the actuator is still between start and target.
func (a *Actuator) Moving() bool {
	return a.now().Sub(a.started) < a.duration()
}

// CircularActuator simulates a continuous-rotation axis that wraps at 360
// degrees and always takes the shortest path to a new target.
type CircularActuator struct {
	Speed float64 // degrees per second, > 0

	start   float64 // unwrapped
	end     float64 // unwrapped
	started time.Time

	now func() time.Time
}

// NewCircularActuator returns an at-rest rotator at start degrees.
func NewCircularActuator(speed, start float64) *CircularActuator {
	start = axis.Wrap(start)
	return &CircularActuator{
		Speed: speed,
		start: start,
		end:   start,
		now:   time.Now,
	}
}

func (c *CircularActuator) duration() time.Duration {
	return time.Duration(math.Abs(c.end-c.start) / c.Speed * float64(time.Second))
}

// Position returns the interpolated position in [0, 360).
func (c *CircularActuator) Position() float64 {
	elapsed := c.now().Sub(c.started)
	total := c.duration()
	if elapsed >= total || total == 0 {
		return axis.Wrap(c.end)
	}
	frac := float64(elapsed) / float64(total)
	return axis.Wrap(c.start + (c.end-c.start)*frac)
}

// SetTarget starts a shortest-path move to v degrees. A commanded delta of
// exactly 180 goes in the positive direction.
func (c *CircularActuator) SetTarget(v float64) {
	p := c.Position()
	delta := axis.Wrap(axis.Wrap(v) - p)
	if delta > 180 {
		delta -= 360
	}
	c.start = p
	c.end = p + delta
	c.started = c.now()
}

// Target returns the commanded end position in [0, 360).
func (c *CircularActuator) Target() float64 { return axis.Wrap(c.end) }

// Moving reports whether the rotator is still between start and target.
func (c *CircularActuator) Moving() bool {
	return c.now().Sub(c.started) < c.duration()
}
