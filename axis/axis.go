package axis

import (
	"fmt"
	"math"
)

// Axis models one linear controllable quantity of the projector mount.
// Position units are whatever the encoder reports (degrees or microns).
type Axis struct {
	Current   float64
	Target    float64
	Tolerance float64
	Min, Max  float64
}

// InRange reports whether v is within the axis travel limits.
func (a Axis) InRange(v float64) bool {
	return v >= a.Min && v <= a.Max
}

// Clamp saturates v into the axis travel limits.
func (a Axis) Clamp(v float64) float64 {
	return math.Min(math.Max(v, a.Min), a.Max)
}

// InPosition reports whether the last read position is within tolerance
// of the target.
func (a Axis) InPosition() bool {
	return math.Abs(a.Current-a.Target) < a.Tolerance
}

// AssertInRange returns an error describing the violated limit, or nil.
func (a Axis) AssertInRange(name string, v float64) error {
	if !a.InRange(v) {
		return fmt.Errorf("%s = %v not in range [%v, %v]", name, v, a.Min, a.Max)
	}
	return nil
}

// Circular models an axis with no travel limits that wraps at 360 degrees.
// In-position is evaluated with a periodic metric so that 359.9 and 0.1 are
// near-adjacent.
type Circular struct {
	Current   float64
	Target    float64
	Tolerance float64
}

// Wrap normalizes an angle in degrees into [0, 360).
func Wrap(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// Distance is the wraparound separation metric between two angles in
// degrees: 1 - cos(a-b). Zero when equal, maximal when opposed.
func Distance(a, b float64) float64 {
	return 1 - math.Cos((a-b)*math.Pi/180)
}

// InPosition reports whether the angular separation of current and target
// is within tolerance under the wraparound metric.
func (c Circular) InPosition() bool {
	return Distance(c.Current, c.Target) < c.Tolerance
}
