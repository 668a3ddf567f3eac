// Package gpiopwm implements a PWM actuator on a GPIO pin pair: one PWM
// line and an optional direction line (the peltier H-bridge needs it, the
// stirrer and LEDs do not).
package gpiopwm

import (
	"context"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"

	"github.com/lumenbio/bioreactor/components/pwmactuator"
	"github.com/lumenbio/bioreactor/utils"
)

// Config describes the wiring of one PWM actuator.
type Config struct {
	PWMPin    string `json:"pwm_pin"`
	DirPin    string `json:"dir_pin,omitempty"`
	FreqHz    int    `json:"freq_hz,omitempty"`
	StartDuty float64 `json:"start_duty,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.PWMPin == "" {
		return errors.Errorf("%s: expected pwm_pin", path)
	}
	return nil
}

const defaultFreqHz = 1000

type actuator struct {
	mu     sync.Mutex
	pwmPin gpio.PinIO
	dirPin gpio.PinIO
	freq   physic.Frequency
	logger golog.Logger
}

// New claims the configured pins and returns the actuator stopped, unless
// StartDuty is set (the stirrer spins from boot).
func New(ctx context.Context, cfg Config, logger golog.Logger) (pwmactuator.Actuator, error) {
	pwmPin := gpioreg.ByName(cfg.PWMPin)
	if pwmPin == nil {
		return nil, errors.Errorf("no GPIO pin named %q", cfg.PWMPin)
	}
	var dirPin gpio.PinIO
	if cfg.DirPin != "" {
		dirPin = gpioreg.ByName(cfg.DirPin)
		if dirPin == nil {
			return nil, errors.Errorf("no GPIO pin named %q", cfg.DirPin)
		}
		if err := dirPin.Out(gpio.Low); err != nil {
			return nil, errors.Wrapf(err, "claiming direction pin %q", cfg.DirPin)
		}
	}
	freqHz := cfg.FreqHz
	if freqHz <= 0 {
		freqHz = defaultFreqHz
	}
	a := &actuator{
		pwmPin: pwmPin,
		dirPin: dirPin,
		freq:   physic.Frequency(freqHz) * physic.Hertz,
		logger: logger,
	}
	if cfg.StartDuty > 0 {
		if err := a.Set(ctx, cfg.StartDuty, true); err != nil {
			return nil, err
		}
	} else if err := a.Stop(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *actuator) Set(ctx context.Context, duty float64, forward bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	duty = utils.Clamp(duty, 0, 100)
	if a.dirPin != nil {
		level := gpio.Low
		if forward {
			level = gpio.High
		}
		if err := a.dirPin.Out(level); err != nil {
			return errors.Wrap(err, "setting direction pin")
		}
	}
	if err := a.pwmPin.PWM(gpio.Duty(duty/100*float64(gpio.DutyMax)), a.freq); err != nil {
		return errors.Wrap(err, "setting pwm duty")
	}
	a.logger.Debugw("pwm set", "pin", a.pwmPin.Name(), "duty", duty, "forward", forward)
	return nil
}

func (a *actuator) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.pwmPin.Halt(); err != nil {
		return errors.Wrap(err, "halting pwm")
	}
	a.logger.Debugw("pwm stopped", "pin", a.pwmPin.Name())
	return nil
}
