package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type scriptedPoller struct {
	results []InPosition
	err     error
	calls   int
}

func (p *scriptedPoller) PollInPosition() (InPosition, error) {
	if p.err != nil {
		return InPosition{}, p.err
	}
	i := p.calls
	if i >= len(p.results) {
		i = len(p.results) - 1
	}
	p.calls++
	return p.results[i], nil
}

func allIn() InPosition {
	return InPosition{Azimuth: true, Elevation: true, Mask: true, MaskRotation: true, Focus: true}
}

func TestTrackerSettles(t *testing.T) {
	moving := allIn()
	moving.Azimuth = false
	p := &scriptedPoller{results: []InPosition{moving, moving, allIn()}}

	tr := Tracker{Poller: p, Interval: 5 * time.Millisecond, Timeout: time.Second}
	assert.NoError(t, tr.Wait(context.Background()))
	assert.Equal(t, 3, p.calls)
}

func TestTrackerTimeout(t *testing.T) {
	moving := allIn()
	moving.Focus = false
	p := &scriptedPoller{results: []InPosition{moving}}

	tr := Tracker{Poller: p, Interval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond}
	err := tr.Wait(context.Background())
	assert.Equal(t, ErrSettleTimeout, err)
}

func TestTrackerCancel(t *testing.T) {
	moving := allIn()
	moving.Mask = false
	p := &scriptedPoller{results: []InPosition{moving}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := Tracker{Poller: p, Interval: 5 * time.Millisecond, Timeout: time.Second}
	err := tr.Wait(ctx)
	assert.Equal(t, context.Canceled, err)
	// the wait was cancelled, but the poll already issued still ran;
	// nothing about the underlying motion is touched
	assert.Equal(t, 1, p.calls)
}

func TestTrackerPollError(t *testing.T) {
	p := &scriptedPoller{err: errors.New("boom")}
	tr := Tracker{Poller: p, Interval: 5 * time.Millisecond, Timeout: time.Second}
	assert.Error(t, tr.Wait(context.Background()))
}
