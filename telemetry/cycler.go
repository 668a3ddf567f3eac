package telemetry

import (
	"context"
	"time"

	"github.com/edaniels/golog"

	"github.com/lumenbio/bioreactor/components/ringlight"
	"github.com/lumenbio/bioreactor/scheduler"
)

// A RingLightCycler alternates the ring light between a color and dark on an
// on/off duty cycle, driven by the lane's elapsed time so it needs no timer
// of its own.
type RingLightCycler struct {
	ring    ringlight.RingLight
	color   ringlight.Color
	onTime  time.Duration
	offTime time.Duration
	logger  golog.Logger
}

// NewRingLightCycler returns a cycler holding color for onTime out of every
// onTime+offTime.
func NewRingLightCycler(
	ring ringlight.RingLight,
	color ringlight.Color,
	onTime, offTime time.Duration,
	logger golog.Logger,
) *RingLightCycler {
	return &RingLightCycler{
		ring:    ring,
		color:   color,
		onTime:  onTime,
		offTime: offTime,
		logger:  logger,
	}
}

// Tick applies the phase the elapsed time falls in. Schedule it with a
// period much shorter than onTime and offTime.
func (c *RingLightCycler) Tick(ctx context.Context, elapsed time.Duration) error {
	if c.ring == nil {
		return nil
	}
	cycle := c.onTime + c.offTime
	if cycle <= 0 {
		return nil
	}
	wantLit := elapsed%cycle < c.onTime
	// query the driver rather than caching, so an OD measurement blanking the
	// ring mid-cycle is healed on the next tick
	if wantLit == c.ring.IsOn() {
		return nil
	}
	if wantLit {
		return c.ring.SetColor(ctx, c.color)
	}
	return c.ring.Off(ctx)
}

// Job wraps the cycler as a scheduler action.
func (c *RingLightCycler) Job() scheduler.Action {
	return c.Tick
}
