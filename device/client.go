package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/opencalib/cbpctl/axis"
	"github.com/opencalib/cbpctl/wire"
)

// Protocol timing. The per-attempt read timeout covers a slow reply; the
// connect timeout covers the controller's slow boot after a power cycle.
const (
	DefaultTimeout           = 5 * time.Second
	ConnectTimeout           = 30 * time.Second
	NumRetries               = 3
	DefaultTelemetryInterval = 500 * time.Millisecond

	// replies read without awaiting a terminator use a fixed byte budget
	readChunk = 1024
)

// Axis travel limits and in-position tolerances. The mount tolerance
// derives from the firmware watchdog limit of 9999 steps at 186413 steps
// per degree, rounded up with margin.
const (
	azimuthMin, azimuthMax     = -45.0, 45.0
	elevationMin, elevationMax = -69.0, 45.0
	focusMin, focusMax         = 0.0, 13000.0
	rotationMin, rotationMax   = 0.0, 360.0

	mountTolerance    = 0.15
	rotationTolerance = 1e-5
	focusTolerance    = 0.5
)

var (
	ErrNotConnected   = errors.New("not connected")
	ErrConnectionLost = errors.New("connection lost")
	ErrReplyTimeout   = errors.New("no reply: retries exhausted")
	ErrUnknownMask    = errors.New("unknown mask")
	ErrPanicked       = errors.New("device panic")
)

type deadliner interface {
	SetReadDeadline(time.Time) error
}

// Client drives the projector over a single stream connection. Every
// protocol exchange is serialized under one lock: the protocol has no
// request identifiers, so at most one command may be in flight per
// connection. Telemetry polls and moves compete for the same lock.
type Client struct {
	dialer Dialer
	codec  wire.Codec
	masks  *axis.MaskTable

	timeout time.Duration
	retries int

	telemetry TelemetrySink
	faults    FaultSink

	// mu serializes protocol exchanges and guards the stream
	mu     sync.Mutex
	stream io.ReadWriteCloser
	br     *bufio.Reader

	stateMu sync.Mutex
	state   ConnectionState

	// dataMu guards the axis model
	dataMu     sync.Mutex
	azimuth    axis.Axis
	elevation  axis.Axis
	focus      axis.Axis
	rotation   axis.Circular
	mask       string
	targetMask string
	parked     bool
	autoParked bool
	status     Status
	inPos      InPosition
}

// NewClient returns a client that will reach the controller through
// dialer. Nil masks gets the default table; nil sinks are discarded.
func NewClient(dialer Dialer, masks *axis.MaskTable, telemetry TelemetrySink, faults FaultSink) *Client {
	if masks == nil {
		masks = axis.NewMaskTable()
	}
	if telemetry == nil {
		telemetry = TelemetryFunc(func(Telemetry) {})
	}
	if faults == nil {
		faults = FaultFunc(func(Fault) {})
	}
	unknown := masks.ByID(axis.UnknownMaskID).Name
	return &Client{
		dialer:     dialer,
		codec:      wire.NewCodec(wire.CRLF),
		masks:      masks,
		timeout:    DefaultTimeout,
		retries:    NumRetries,
		telemetry:  telemetry,
		faults:     faults,
		azimuth:    axis.Axis{Tolerance: mountTolerance, Min: azimuthMin, Max: azimuthMax},
		elevation:  axis.Axis{Tolerance: mountTolerance, Min: elevationMin, Max: elevationMax},
		focus:      axis.Axis{Tolerance: focusTolerance, Min: focusMin, Max: focusMax},
		rotation:   axis.Circular{Tolerance: rotationTolerance},
		mask:       unknown,
		targetMask: unknown,
		inPos:      InPosition{Azimuth: true, Elevation: true, Mask: true, MaskRotation: true, Focus: true},
	}
}

// SetTerminator switches the codec's line terminator. Use wire.CR with a
// SerialDialer. Call before Connect.
func (c *Client) SetTerminator(term wire.Terminator) {
	c.codec = wire.NewCodec(term)
}

// SetTimeout overrides the per-attempt reply timeout.
func (c *Client) SetTimeout(d time.Duration) { c.timeout = d }

// SetRetries overrides the bounded retry count for slow replies.
func (c *Client) SetRetries(n int) { c.retries = n }

// Masks exposes the configured mask table.
func (c *Client) Masks() *axis.MaskTable { return c.masks }

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Client) setState(s ConnectionState) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// Connect opens a fresh stream to the controller. Failure is surfaced
// both as the returned error and as a FaultConnectionFailed notification;
// there is no silent retry loop.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return nil
	}
	c.setState(Connecting)
	stream, err := c.dialer.Dial()
	if err != nil {
		c.setState(Disconnected)
		c.faults.Fault(Fault{Code: FaultConnectionFailed, Reason: "connection failed: " + err.Error()})
		return fmt.Errorf("connect: %w", err)
	}
	c.stream = stream
	c.br = bufio.NewReader(stream)
	c.setState(Connected)
	return nil
}

// Disconnect closes the stream. It is idempotent: calling it while
// already disconnected is a no-op, and the client can Connect again
// afterwards on a brand new stream.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
		c.br = nil
	}
	c.setState(Disconnected)
	return nil
}

// dropLocked tears the connection down after a transport fault and
// escalates. Connection-level failures are never retried locally.
func (c *Client) dropLocked(reason string) {
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
		c.br = nil
	}
	c.setState(Disconnected)
	c.faults.Fault(Fault{Code: FaultConnectionFailed, Reason: reason})
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.ErrNoProgress) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// send issues one command under the exchange lock. See sendLocked.
func (c *Client) send(cmd string, awaitReply, awaitTerm bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(cmd, awaitReply, awaitTerm)
}

// sendLocked writes the encoded command and, when a reply is expected,
// reads it with a bounded per-attempt timeout. A short or missing reply
// is retried up to the configured count; a transport failure aborts
// immediately and signals the fault sink. Exactly one of reply obtained,
// retries exhausted, or connection fault is the outcome.
func (c *Client) sendLocked(cmd string, awaitReply, awaitTerm bool) (string, error) {
	if c.stream == nil {
		return "", ErrNotConnected
	}
	if _, err := c.stream.Write(c.codec.Encode(cmd)); err != nil {
		c.dropLocked("lost connection: " + err.Error())
		return "", fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	if !awaitReply {
		return "", nil
	}
	// A reply may straddle a timed-out read, so bytes consumed before the
	// deadline are carried into the next attempt and the line is only
	// decoded once complete.
	var partial []byte
	for attempt := 0; attempt < c.retries; attempt++ {
		raw, err := c.readOnce(awaitTerm)
		partial = append(partial, raw...)
		if err == nil {
			reply, derr := c.codec.Decode(partial)
			if derr != nil {
				// reply carried no payload; treat like a short read
				partial = partial[:0]
				continue
			}
			return reply, nil
		}
		if isTimeout(err) {
			continue
		}
		c.dropLocked("lost connection: " + err.Error())
		return "", fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return "", fmt.Errorf("%w: %s", ErrReplyTimeout, cmd)
}

func (c *Client) readOnce(awaitTerm bool) ([]byte, error) {
	if d, ok := c.stream.(deadliner); ok {
		d.SetReadDeadline(time.Now().Add(c.timeout))
		defer d.SetReadDeadline(time.Time{})
	}
	if awaitTerm {
		delim := byte('\r')
		if c.codec.Term == wire.CRLF {
			delim = '\n'
		}
		return c.br.ReadBytes(delim)
	}
	buf := make([]byte, readChunk)
	n, err := c.br.Read(buf)
	return buf[:n], err
}

// queryFloat runs a read query and parses the numeric reply.
func (c *Client) queryFloat(cmd string) (float64, error) {
	reply, err := c.sendLocked(cmd, true, true)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s reply %q: %w", cmd, reply, err)
	}
	return v, nil
}

// queryBool runs a read query whose reply is a 0/1-valued numeric string.
func (c *Client) queryBool(cmd string) (bool, error) {
	v, err := c.queryFloat(cmd)
	return v != 0, err
}

// MoveAzimuth commands the azimuth axis, in degrees. Out-of-range input
// is rejected before any bytes reach the wire.
func (c *Client) MoveAzimuth(position float64) error {
	c.dataMu.Lock()
	err := c.azimuth.AssertInRange("azimuth", position)
	c.dataMu.Unlock()
	if err != nil {
		return err
	}
	return c.sendAzimuth(position)
}

func (c *Client) sendAzimuth(position float64) error {
	c.dataMu.Lock()
	c.azimuth.Target = position
	c.inPos.Azimuth = false
	c.dataMu.Unlock()
	_, err := c.send(fmt.Sprintf("new_az=%s", formatFloat(position)), true, false)
	return err
}

// MoveElevation commands the elevation axis, in degrees. The low-level
// controller calls this axis "altitude".
func (c *Client) MoveElevation(position float64) error {
	c.dataMu.Lock()
	err := c.elevation.AssertInRange("elevation", position)
	c.dataMu.Unlock()
	if err != nil {
		return err
	}
	return c.sendElevation(position)
}

func (c *Client) sendElevation(position float64) error {
	c.dataMu.Lock()
	c.elevation.Target = position
	c.inPos.Elevation = false
	c.dataMu.Unlock()
	_, err := c.send(fmt.Sprintf("new_alt=%s", formatFloat(position)), true, false)
	return err
}

// Move commands azimuth and elevation together. Both inputs are
// validated before either command is sent.
func (c *Client) Move(azimuth, elevation float64) error {
	c.dataMu.Lock()
	err := c.azimuth.AssertInRange("azimuth", azimuth)
	if err == nil {
		err = c.elevation.AssertInRange("elevation", elevation)
	}
	c.dataMu.Unlock()
	if err != nil {
		return err
	}
	if err := c.sendElevation(elevation); err != nil {
		return err
	}
	return c.sendAzimuth(azimuth)
}

// SetFocus commands the focus stage, in integer microns.
func (c *Client) SetFocus(position int) error {
	c.dataMu.Lock()
	if err := c.focus.AssertInRange("focus", float64(position)); err != nil {
		c.dataMu.Unlock()
		return err
	}
	c.focus.Target = float64(position)
	c.inPos.Focus = false
	c.dataMu.Unlock()
	_, err := c.send(fmt.Sprintf("new_foc=%d", position), true, false)
	return err
}

// SetMaskRotation commands the mask rotator, in degrees.
func (c *Client) SetMaskRotation(rotation float64) error {
	if rotation < rotationMin || rotation > rotationMax {
		return fmt.Errorf("mask_rotation = %v not in range [%v, %v]", rotation, rotationMin, rotationMax)
	}
	c.dataMu.Lock()
	c.rotation.Target = rotation
	c.inPos.MaskRotation = false
	c.dataMu.Unlock()
	_, err := c.send(fmt.Sprintf("new_rot=%s", formatFloat(rotation)), true, false)
	return err
}

// SelectMask switches to the mask in slot id (1-5) and rotates it to its
// nominal angle. Mask identity and mask angle are independent axes with
// no firmware coupling, so these are two dependent moves and both are
// always issued; in-position is invalidated for both until they settle.
func (c *Client) SelectMask(id int) error {
	if id < 1 || id > 5 {
		return fmt.Errorf("%w: slot %d", ErrUnknownMask, id)
	}
	m := c.masks.ByID(id)
	c.dataMu.Lock()
	c.targetMask = m.Name
	c.inPos.Mask = false
	c.dataMu.Unlock()
	if _, err := c.send(fmt.Sprintf("new_msk=%d", m.ID), true, false); err != nil {
		return err
	}
	return c.SetMaskRotation(m.Rotation)
}

// ChangeMask is SelectMask keyed by the configured mask name.
func (c *Client) ChangeMask(name string) error {
	m, ok := c.masks.ByName(name)
	if !ok || m.ID == axis.UnknownMaskID {
		return fmt.Errorf("%w: %q", ErrUnknownMask, name)
	}
	return c.SelectMask(m.ID)
}

// Park drives the mount to its safe position and re-reads the park state
// to confirm.
func (c *Client) Park() error {
	if _, err := c.send("park=1", true, false); err != nil {
		return err
	}
	return c.CheckPark()
}

// Unpark releases the mount from its safe position.
func (c *Client) Unpark() error {
	if _, err := c.send("park=0", true, false); err != nil {
		return err
	}
	return c.CheckPark()
}

// CheckPark re-reads the park and autopark flags.
func (c *Client) CheckPark() error {
	c.mu.Lock()
	parked, err := c.queryBool("park=?")
	if err != nil {
		c.mu.Unlock()
		return err
	}
	autoParked, err := c.queryBool("autopark=?")
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.dataMu.Lock()
	c.parked = parked
	c.autoParked = autoParked
	c.dataMu.Unlock()
	return nil
}

// Poll runs one telemetry refresh cycle: the status bits, park flags and
// every axis position, in a fixed order, atomically with respect to any
// other command issuance. The resulting snapshot is pushed to the
// telemetry sink and returned.
func (c *Client) Poll() (Telemetry, error) {
	c.mu.Lock()
	var st Status
	var err error
	read := func(cmd string, dst *bool) {
		if err != nil {
			return
		}
		*dst, err = c.queryBool(cmd)
	}
	read("wdpanic=?", &st.Panic)
	read("AAstat=?", &st.Azimuth)
	read("ABstat=?", &st.Elevation)
	read("ACstat=?", &st.Mask)
	read("ADstat=?", &st.MaskRotation)
	read("AEstat=?", &st.Focus)

	var parked, autoParked bool
	read("park=?", &parked)
	read("autopark=?", &autoParked)

	readF := func(cmd string) (v float64) {
		if err != nil {
			return 0
		}
		v, err = c.queryFloat(cmd)
		return v
	}
	elevation := readF("alt=?")
	azimuth := readF("az=?")
	focus := readF("foc=?")
	maskID := readF("msk=?")
	maskRotation := readF("rot=?")
	c.mu.Unlock()
	if err != nil {
		return Telemetry{}, err
	}

	c.dataMu.Lock()
	c.status = st
	c.parked = parked
	c.autoParked = autoParked
	c.elevation.Current = elevation
	c.azimuth.Current = azimuth
	c.focus.Current = focus
	c.mask = c.masks.ByID(int(maskID)).Name
	c.rotation.Current = maskRotation
	c.dataMu.Unlock()

	c.UpdateInPosition()
	tel := c.Snapshot()
	c.telemetry.UpdateTelemetry(tel)
	return tel, nil
}

// UpdateInPosition recomputes the per-axis settled flags from the most
// recently read encoder data and reports whether any flag flipped since
// the previous evaluation. Re-issuing an identical target does not
// produce a change, so callers can use the result to decide whether a
// state change is worth announcing without duplicates.
func (c *Client) UpdateInPosition() bool {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()
	next := InPosition{
		Azimuth:      c.azimuth.InPosition(),
		Elevation:    c.elevation.InPosition(),
		Mask:         c.mask == c.targetMask,
		MaskRotation: c.rotation.InPosition(),
		Focus:        c.focus.InPosition(),
	}
	changed := next != c.inPos
	c.inPos = next
	return changed
}

// Snapshot returns a copy of the axis model.
func (c *Client) Snapshot() Telemetry {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()
	return Telemetry{
		Azimuth:      c.azimuth.Current,
		Elevation:    c.elevation.Current,
		Focus:        c.focus.Current,
		Mask:         c.mask,
		MaskRotation: c.rotation.Current,
		Parked:       c.parked,
		AutoParked:   c.autoParked,
		Target: Target{
			Azimuth:      c.azimuth.Target,
			Elevation:    c.elevation.Target,
			Focus:        c.focus.Target,
			Mask:         c.targetMask,
			MaskRotation: c.rotation.Target,
		},
		Status:     c.status,
		InPosition: c.inPos,
	}
}

// Sync polls once and adopts the reported positions as targets, so that
// in-position starts true after (re)connecting.
func (c *Client) Sync() error {
	if _, err := c.Poll(); err != nil {
		return err
	}
	c.dataMu.Lock()
	c.azimuth.Target = c.azimuth.Current
	c.elevation.Target = c.elevation.Current
	c.focus.Target = c.focus.Current
	c.rotation.Target = c.rotation.Current
	c.targetMask = c.mask
	c.dataMu.Unlock()
	c.UpdateInPosition()
	return nil
}

// Run drives the telemetry refresh loop until ctx is cancelled or a
// fault stops it. A reported panic bit and a failing poll are escalated
// as distinct fault kinds; a lost connection has already been escalated
// by the exchange layer.
func (c *Client) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTelemetryInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		tel, err := c.Poll()
		if err != nil {
			if !errors.Is(err, ErrConnectionLost) {
				c.faults.Fault(Fault{Code: FaultTelemetryFailed, Reason: "telemetry loop failed: " + err.Error()})
			}
			return err
		}
		if tel.Status.Panic {
			c.faults.Fault(Fault{Code: FaultPanicked, Reason: "device panicked; check hardware and reset"})
			return ErrPanicked
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Exchange issues one raw protocol line under the exchange lock and
// returns the decoded reply. Intended for the engineering console.
func (c *Client) Exchange(cmd string) (string, error) {
	return c.send(cmd, true, true)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
