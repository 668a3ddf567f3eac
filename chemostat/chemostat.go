// Package chemostat coordinates the dosing pumps that keep the reactor's
// working volume constant. An inflow pump feeds fresh media while its
// converse outflow pump drains at the same volumetric rate.
package chemostat

import (
	"context"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/lumenbio/bioreactor/components/pump"
	"github.com/lumenbio/bioreactor/utils"
)

// microstepGranularity is the stepper's microstep multiple; commanded
// velocities are rounded down to it.
const microstepGranularity = 8

// A Channel is one calibrated dosing pump. Calibration is read-only once
// the coordinator is built.
type Channel struct {
	Pump       pump.Pump
	Direction  pump.Direction
	StepsPerML float64
}

// A Coordinator owns the rig's dosing pumps and converts volumetric rates
// into stepper velocities.
type Coordinator struct {
	pumps  map[string]Channel
	clock  clock.Clock
	logger golog.Logger
}

// New returns a Coordinator over the given pump channels.
func New(pumps map[string]Channel, logger golog.Logger) *Coordinator {
	return newWithClock(pumps, logger, clock.New())
}

func newWithClock(pumps map[string]Channel, logger golog.Logger, clk clock.Clock) *Coordinator {
	return &Coordinator{pumps: pumps, clock: clk, logger: logger}
}

// Pumps lists the configured pump names.
func (c *Coordinator) Pumps() []string {
	names := make([]string, 0, len(c.pumps))
	for name := range c.pumps {
		names = append(names, name)
	}
	return names
}

// ChangePump sets the named pump to mlPerSec. The rate is converted with the
// channel's calibration and quantized down to the microstep granularity; the
// velocity sign follows the channel's plumbed direction. A rate that
// quantizes to zero de-energizes the pump entirely instead of holding
// velocity zero, so the driver stops drawing current.
func (c *Coordinator) ChangePump(ctx context.Context, name string, mlPerSec float64) error {
	if mlPerSec < 0 {
		return errors.Errorf("flow rate must be non-negative, got %v ml/s", mlPerSec)
	}
	ch, ok := c.pumps[name]
	if !ok {
		return errors.Errorf("no pump named %q configured, available: %v", name, c.Pumps())
	}

	stepsPerSec := utils.QuantizeSteps(mlPerSec*ch.StepsPerML, microstepGranularity)
	if stepsPerSec == 0 {
		c.logger.Debugw("flow rate quantizes to zero; de-energizing pump", "pump", name)
		return ch.Pump.Deenergize(ctx)
	}
	if ch.Direction == pump.Reverse {
		stepsPerSec = -stepsPerSec
	}

	if err := ch.Pump.Energize(ctx); err != nil {
		return errors.Wrapf(err, "energizing pump %q", name)
	}
	if err := ch.Pump.ExitSafeStart(ctx); err != nil {
		return errors.Wrapf(err, "clearing safe start on pump %q", name)
	}
	if err := ch.Pump.SetVelocity(ctx, stepsPerSec); err != nil {
		return errors.Wrapf(err, "setting velocity on pump %q", name)
	}
	c.logger.Infow("pump rate changed",
		"pump", name, "ml_per_sec", mlPerSec, "steps_per_sec", stepsPerSec)
	return nil
}

// conversePump resolves the paired pump name by convention: inflow pairs
// with outflow, and an _in suffix pairs with _out.
func conversePump(name string) (string, bool) {
	switch {
	case name == "inflow":
		return "outflow", true
	case name == "outflow":
		return "inflow", true
	case strings.HasSuffix(name, "_in"):
		return strings.TrimSuffix(name, "_in") + "_out", true
	case strings.HasSuffix(name, "_out"):
		return strings.TrimSuffix(name, "_out") + "_in", true
	}
	return "", false
}

// SetBalancedFlow runs the primary pump and its converse at the same
// volumetric rate so net working volume stays constant. When the converse
// cannot be resolved or is not configured the primary runs alone with a
// warning. A positive duration blocks for that long and then stops both
// pumps before returning; otherwise both are left running.
//
// The duration sleep is not interrupted by ctx; cancellation of dosing is
// cooperative at the scheduler tick boundary only.
func (c *Coordinator) SetBalancedFlow(
	ctx context.Context,
	primary string,
	mlPerSec float64,
	duration time.Duration,
) error {
	if mlPerSec < 0 {
		return errors.Errorf("flow rate must be non-negative, got %v ml/s", mlPerSec)
	}
	if _, ok := c.pumps[primary]; !ok {
		return errors.Errorf("no pump named %q configured, available: %v", primary, c.Pumps())
	}

	partner := ""
	if converse, ok := conversePump(primary); ok {
		if _, configured := c.pumps[converse]; configured {
			partner = converse
		}
	}
	if partner == "" {
		c.logger.Warnw("no converse pump configured; running degraded single-pump flow",
			"pump", primary)
	}

	if err := c.ChangePump(ctx, primary, mlPerSec); err != nil {
		return err
	}
	if partner != "" {
		if err := c.ChangePump(ctx, partner, mlPerSec); err != nil {
			return err
		}
	}

	if duration <= 0 {
		return nil
	}
	c.clock.Sleep(duration)

	err := c.ChangePump(ctx, primary, 0)
	if partner != "" {
		err = multierr.Combine(err, c.ChangePump(ctx, partner, 0))
	}
	return err
}

// StopAll de-energizes every configured pump, aggregating errors.
func (c *Coordinator) StopAll(ctx context.Context) error {
	var err error
	for name := range c.pumps {
		err = multierr.Combine(err, c.ChangePump(ctx, name, 0))
	}
	return err
}
