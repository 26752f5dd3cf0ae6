package device

import (
	"context"
	"errors"
	"time"
)

// Settle-wait policy. Mask changes are two physical moves back to back,
// so they get the long budget.
const (
	DefaultSettleTimeout = 20 * time.Second
	MaskSettleTimeout    = 90 * time.Second
	DefaultPollInterval  = 500 * time.Millisecond
)

// ErrSettleTimeout indicates the axes did not all reach their targets
// within the allotted time.
var ErrSettleTimeout = errors.New("axes did not settle before timeout")

// Poller reports the per-axis settled flags after a fresh poll.
type Poller interface {
	PollInPosition() (InPosition, error)
}

// PollInPosition implements Poller.
func (c *Client) PollInPosition() (InPosition, error) {
	tel, err := c.Poll()
	return tel.InPosition, err
}

// Tracker combines the per-axis settled flags into a single readiness
// wait with a fixed poll interval and an overall timeout.
type Tracker struct {
	Poller   Poller
	Interval time.Duration // defaults to DefaultPollInterval
	Timeout  time.Duration // defaults to DefaultSettleTimeout
}

// Wait blocks until every axis is in position, the timeout elapses, or
// ctx is cancelled. Cancellation stops only the waiting: any motion
// already commanded continues on the device and is never rolled back.
func (t Tracker) Wait(ctx context.Context) error {
	interval := t.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultSettleTimeout
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		p, err := t.Poller.PollInPosition()
		if err != nil {
			return err
		}
		if p.All() {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrSettleTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
