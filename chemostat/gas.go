package chemostat

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/lumenbio/bioreactor/components/relay"
)

// A GasSystem drives the solenoid relays that gas and drain the tank.
type GasSystem struct {
	relays    relay.Relays // may be nil
	co2Relay  string
	dumpRelay string
	clock     clock.Clock
	logger    golog.Logger
}

// NewGasSystem returns a GasSystem using co2Relay for the injection solenoid
// and dumpRelay for the drain valve. relays may be nil when the bank failed
// to initialize; every sequence then degrades to a warning.
func NewGasSystem(relays relay.Relays, co2Relay, dumpRelay string, logger golog.Logger) *GasSystem {
	return newGasSystemWithClock(relays, co2Relay, dumpRelay, logger, clock.New())
}

func newGasSystemWithClock(
	relays relay.Relays,
	co2Relay, dumpRelay string,
	logger golog.Logger,
	clk clock.Clock,
) *GasSystem {
	return &GasSystem{
		relays:    relays,
		co2Relay:  co2Relay,
		dumpRelay: dumpRelay,
		clock:     clk,
		logger:    logger,
	}
}

// InjectCO2 waits delay for the line to pressurize, then holds the injection
// solenoid open for injectFor. The solenoid is closed again even when a
// mid-sequence relay fault occurs.
//
// The sleeps are not interrupted by ctx; see SetBalancedFlow.
func (g *GasSystem) InjectCO2(ctx context.Context, delay, injectFor time.Duration) (err error) {
	if g.relays == nil {
		g.logger.Warn("relay bank not available; cannot inject co2")
		return nil
	}
	if delay > 0 {
		g.clock.Sleep(delay)
	}
	if onErr := g.relays.On(ctx, g.co2Relay); onErr != nil {
		return errors.Wrap(onErr, "opening co2 solenoid")
	}
	defer func() {
		if offErr := g.relays.Off(ctx, g.co2Relay); offErr != nil {
			g.logger.Errorw("failed to close co2 solenoid", "error", offErr)
			err = multierr.Combine(err, errors.Wrap(offErr, "closing co2 solenoid"))
		}
	}()
	g.logger.Infow("injecting co2", "duration", injectFor)
	g.clock.Sleep(injectFor)
	return nil
}

// FlushTank holds the drain valve open for openFor. The valve is closed
// again even when a mid-sequence relay fault occurs.
func (g *GasSystem) FlushTank(ctx context.Context, openFor time.Duration) (err error) {
	if g.relays == nil {
		g.logger.Warn("relay bank not available; cannot flush tank")
		return nil
	}
	if onErr := g.relays.On(ctx, g.dumpRelay); onErr != nil {
		return errors.Wrap(onErr, "opening dump valve")
	}
	defer func() {
		if offErr := g.relays.Off(ctx, g.dumpRelay); offErr != nil {
			g.logger.Errorw("failed to close dump valve", "error", offErr)
			err = multierr.Combine(err, errors.Wrap(offErr, "closing dump valve"))
		}
	}()
	g.logger.Infow("flushing tank", "duration", openFor)
	g.clock.Sleep(openFor)
	return nil
}
