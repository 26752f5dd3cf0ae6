// Package device implements the client side of the projector's
// command/reply protocol: serialized exchanges over one stream, retry and
// timeout policy, range-validated axis operations, and the telemetry
// refresh cycle consumed by a supervisory layer.
package device

// ConnectionState tracks the client's transport lifecycle. It is owned
// exclusively by the Client and transitions only through Connect and
// Disconnect.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// FaultCode identifies a fault escalated to the supervisory layer.
type FaultCode int

const (
	FaultConnectionFailed FaultCode = 1
	FaultTelemetryFailed  FaultCode = 2
	FaultPanicked         FaultCode = 3
)

// Fault is a discrete fault notification: a code plus a human-readable
// cause. The supervisory layer decides on recovery; the client never
// reconnects on its own.
type Fault struct {
	Code   FaultCode `json:"code"`
	Reason string    `json:"reason"`
}

// FaultSink receives fault notifications.
type FaultSink interface {
	Fault(Fault)
}

// FaultFunc adapts a function to a FaultSink.
type FaultFunc func(Fault)

func (f FaultFunc) Fault(ft Fault) { f(ft) }

// TelemetrySink receives a snapshot after every poll cycle.
type TelemetrySink interface {
	UpdateTelemetry(Telemetry)
}

// TelemetryFunc adapts a function to a TelemetrySink.
type TelemetryFunc func(Telemetry)

func (f TelemetryFunc) UpdateTelemetry(t Telemetry) { f(t) }

// Status holds the device status bits: the watchdog panic flag and one
// error bit per encoder. False means healthy.
type Status struct {
	Panic        bool `json:"panic"`
	Azimuth      bool `json:"azimuth"`
	Elevation    bool `json:"elevation"`
	Mask         bool `json:"mask"`
	MaskRotation bool `json:"maskRotation"`
	Focus        bool `json:"focus"`
}

// InPosition holds the per-axis settled flags from the last evaluation.
type InPosition struct {
	Azimuth      bool `json:"azimuth"`
	Elevation    bool `json:"elevation"`
	Mask         bool `json:"mask"`
	MaskRotation bool `json:"maskRotation"`
	Focus        bool `json:"focus"`
}

// All reports whether every axis is in position.
func (p InPosition) All() bool {
	return p.Azimuth && p.Elevation && p.Mask && p.MaskRotation && p.Focus
}

// Target is the commanded position of every axis.
type Target struct {
	Azimuth      float64 `json:"azimuth"`
	Elevation    float64 `json:"elevation"`
	Focus        float64 `json:"focus"`
	Mask         string  `json:"mask"`
	MaskRotation float64 `json:"maskRotation"`
}

// Telemetry is the snapshot pushed to the TelemetrySink after each poll.
type Telemetry struct {
	Azimuth      float64 `json:"azimuth"`
	Elevation    float64 `json:"elevation"`
	Focus        float64 `json:"focus"`
	Mask         string  `json:"mask"`
	MaskRotation float64 `json:"maskRotation"`
	Parked       bool    `json:"parked"`
	AutoParked   bool    `json:"autoParked"`

	Target     Target     `json:"target"`
	Status     Status     `json:"status"`
	InPosition InPosition `json:"inPosition"`
}
