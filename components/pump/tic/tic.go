// Package tic implements the dosing pump on a Pololu Tic stepper controller
// over I2C. Only the handful of commands the rig issues are implemented;
// everything else (step mode, current limit) is configured once with the
// vendor tool and persists on the controller.
package tic

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"

	"github.com/lumenbio/bioreactor/components/pump"
)

// Tic quick commands (single byte) and the 32-bit target velocity command.
const (
	cmdExitSafeStart     = 0x83
	cmdEnergize          = 0x85
	cmdDeenergize        = 0x86
	cmdSetTargetVelocity = 0xE3
	velocityUnitsPerStep = 10000 // the Tic takes velocity in steps/s * 10^-4
)

// Config describes one Tic controller.
type Config struct {
	I2CBus  string `json:"i2c_bus"`
	Address uint16 `json:"address"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.I2CBus == "" {
		return errors.Errorf("%s: expected i2c_bus", path)
	}
	if cfg.Address == 0 {
		return errors.Errorf("%s: expected address", path)
	}
	return nil
}

type ticPump struct {
	mu     sync.Mutex
	bus    i2c.BusCloser
	dev    i2c.Dev
	logger golog.Logger
}

// New opens the bus and returns the pump de-energized.
func New(ctx context.Context, cfg Config, logger golog.Logger) (pump.Pump, error) {
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, errors.Wrapf(err, "opening I2C bus %q", cfg.I2CBus)
	}
	p := &ticPump{
		bus:    bus,
		dev:    i2c.Dev{Bus: bus, Addr: cfg.Address},
		logger: logger,
	}
	if err := p.Deenergize(ctx); err != nil {
		if closeErr := bus.Close(); closeErr != nil {
			logger.Errorw("error closing I2C bus", "error", closeErr)
		}
		return nil, err
	}
	return p, nil
}

func (p *ticPump) quick(cmd byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dev.Tx([]byte{cmd}, nil)
}

func (p *ticPump) SetVelocity(ctx context.Context, stepsPerSec int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	buf := make([]byte, 5)
	buf[0] = cmdSetTargetVelocity
	binary.LittleEndian.PutUint32(buf[1:], uint32(int32(stepsPerSec*velocityUnitsPerStep)))
	if err := p.dev.Tx(buf, nil); err != nil {
		return errors.Wrap(err, "setting target velocity")
	}
	p.logger.Debugw("pump velocity set", "steps_per_sec", stepsPerSec)
	return nil
}

func (p *ticPump) Energize(ctx context.Context) error {
	return errors.Wrap(p.quick(cmdEnergize), "energizing pump")
}

func (p *ticPump) Deenergize(ctx context.Context) error {
	return errors.Wrap(p.quick(cmdDeenergize), "de-energizing pump")
}

func (p *ticPump) ExitSafeStart(ctx context.Context) error {
	return errors.Wrap(p.quick(cmdExitSafeStart), "exiting safe start")
}
