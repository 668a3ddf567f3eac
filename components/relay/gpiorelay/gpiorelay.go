// Package gpiorelay implements a relay bank driven by GPIO pins.
//
// The bench relay boards are active-low: driving the pin low energizes the
// relay. That inversion lives here so callers only think in on/off.
package gpiorelay

import (
	"context"
	"sort"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/lumenbio/bioreactor/components/relay"
)

// Config maps relay names to GPIO pin names (e.g. "GPIO26").
type Config struct {
	Pins map[string]string `json:"pins"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if len(cfg.Pins) == 0 {
		return errors.Errorf("%s: expected at least one relay pin", path)
	}
	return nil
}

type bank struct {
	pins   map[string]gpio.PinIO
	logger golog.Logger
}

// New claims the configured pins and returns the bank with every relay off.
func New(cfg Config, logger golog.Logger) (relay.Relays, error) {
	pins := make(map[string]gpio.PinIO, len(cfg.Pins))
	for name, pinName := range cfg.Pins {
		pin := gpioreg.ByName(pinName)
		if pin == nil {
			return nil, errors.Errorf("relay %q: no GPIO pin named %q", name, pinName)
		}
		// high = de-energized on the active-low board
		if err := pin.Out(gpio.High); err != nil {
			return nil, errors.Wrapf(err, "relay %q: claiming pin %q", name, pinName)
		}
		pins[name] = pin
		logger.Infow("relay initialized", "relay", name, "pin", pinName)
	}
	return &bank{pins: pins, logger: logger}, nil
}

func (b *bank) set(name string, on bool) error {
	pin, ok := b.pins[name]
	if !ok {
		return relay.NewUnknownRelayError(name, b.Names())
	}
	level := gpio.High
	if on {
		level = gpio.Low
	}
	if err := pin.Out(level); err != nil {
		return errors.Wrapf(err, "setting relay %q", name)
	}
	b.logger.Debugw("relay set", "relay", name, "on", on)
	return nil
}

func (b *bank) On(ctx context.Context, name string) error {
	return b.set(name, true)
}

func (b *bank) Off(ctx context.Context, name string) error {
	return b.set(name, false)
}

func (b *bank) State(ctx context.Context, name string) (bool, error) {
	pin, ok := b.pins[name]
	if !ok {
		return false, relay.NewUnknownRelayError(name, b.Names())
	}
	return pin.Read() == gpio.Low, nil
}

func (b *bank) AllOn(ctx context.Context) error {
	var err error
	for name := range b.pins {
		err = multierr.Combine(err, b.set(name, true))
	}
	return err
}

func (b *bank) AllOff(ctx context.Context) error {
	var err error
	for name := range b.pins {
		err = multierr.Combine(err, b.set(name, false))
	}
	return err
}

func (b *bank) Names() []string {
	names := make([]string, 0, len(b.pins))
	for name := range b.pins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
