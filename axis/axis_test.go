package axis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAxisInPosition(t *testing.T) {
	a := Axis{Current: 10, Target: 10.1, Tolerance: 0.15, Min: -45, Max: 45}
	assert.True(t, a.InPosition())

	a.Target = 10.2
	assert.False(t, a.InPosition())

	// exactly at tolerance is out, strict less-than
	a = Axis{Current: 0, Target: 0.15, Tolerance: 0.15}
	assert.False(t, a.InPosition())
}

func TestAxisRange(t *testing.T) {
	a := Axis{Min: -69, Max: 45}
	assert.True(t, a.InRange(-69))
	assert.True(t, a.InRange(45))
	assert.False(t, a.InRange(-69.01))
	assert.False(t, a.InRange(45.01))

	assert.Error(t, a.AssertInRange("elevation", 46))
	assert.NoError(t, a.AssertInRange("elevation", 0))

	assert.Equal(t, 45.0, a.Clamp(100))
	assert.Equal(t, -69.0, a.Clamp(-100))
	assert.Equal(t, 3.0, a.Clamp(3))
}

func TestWrap(t *testing.T) {
	assert.Equal(t, 0.0, Wrap(360))
	assert.Equal(t, 10.0, Wrap(370))
	assert.InDelta(t, 350, Wrap(-10), 1e-9)
}

func TestCircularDistancePeriodic(t *testing.T) {
	// 359.9 and 0.1 are near-adjacent under the wraparound metric
	assert.True(t, Distance(359.9, 0.1) < Distance(359.9, 180))

	c := Circular{Current: 359.9, Target: 0.1, Tolerance: 1e-5}
	assert.True(t, c.InPosition())

	c.Target = 180
	assert.False(t, c.InPosition())
}
