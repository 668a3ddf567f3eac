package chemostat

import (
	"context"
	"time"

	"github.com/lumenbio/bioreactor/control"
	"github.com/lumenbio/bioreactor/scheduler"
)

// Job returns a scheduler action that re-issues balanced flow each tick,
// leaving the pumps running between ticks.
func (c *Coordinator) Job(primary string, mlPerSec float64) scheduler.Action {
	return func(ctx context.Context, elapsed time.Duration) error {
		return c.SetBalancedFlow(ctx, primary, mlPerSec, 0)
	}
}

// ChemostatJob couples balanced-flow dosing with an optional temperature
// control step in a single tick, for rigs running both from one lane.
// controller may be nil.
func ChemostatJob(
	coord *Coordinator,
	primary string,
	mlPerSec float64,
	controller *control.TempController,
) scheduler.Action {
	return func(ctx context.Context, elapsed time.Duration) error {
		if err := coord.SetBalancedFlow(ctx, primary, mlPerSec, 0); err != nil {
			return err
		}
		if controller != nil {
			return controller.Step(ctx)
		}
		return nil
	}
}

// InjectCO2Job returns a one-shot style action running the injection
// sequence each invocation; schedule it with a period covering the full
// delay plus injection time.
func (g *GasSystem) InjectCO2Job(delay, injectFor time.Duration) scheduler.Action {
	return func(ctx context.Context, elapsed time.Duration) error {
		return g.InjectCO2(ctx, delay, injectFor)
	}
}

// FlushTankJob returns an action running the flush sequence each invocation.
func (g *GasSystem) FlushTankJob(openFor time.Duration) scheduler.Action {
	return func(ctx context.Context, elapsed time.Duration) error {
		return g.FlushTank(ctx, openFor)
	}
}
