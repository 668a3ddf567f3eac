// Package rig assembles the bench hardware into one device registry. Each
// configured device is initialized independently; a device that fails to
// come up is logged and its capability left absent, so a half-equipped rig
// still runs everything it can.
package rig

import (
	"context"
	"io"
	"sync"

	"github.com/edaniels/golog"
	"go.uber.org/multierr"
	"periph.io/x/host/v3"

	"github.com/lumenbio/bioreactor/chemostat"
	"github.com/lumenbio/bioreactor/components/pump"
	"github.com/lumenbio/bioreactor/components/pump/tic"
	"github.com/lumenbio/bioreactor/components/pwmactuator"
	"github.com/lumenbio/bioreactor/components/pwmactuator/gpiopwm"
	"github.com/lumenbio/bioreactor/components/relay"
	"github.com/lumenbio/bioreactor/components/relay/gpiorelay"
	"github.com/lumenbio/bioreactor/components/ringlight"
	"github.com/lumenbio/bioreactor/components/ringlight/dotstar"
	"github.com/lumenbio/bioreactor/components/sensor"
	"github.com/lumenbio/bioreactor/components/sensor/ads1x15"
	"github.com/lumenbio/bioreactor/components/sensor/atlasezo"
	"github.com/lumenbio/bioreactor/components/sensor/ds18b20"
	"github.com/lumenbio/bioreactor/components/sensor/senseair"
)

var hostInitOnce sync.Once

// A Rig is the set of devices a session runs against. Query capabilities
// with the typed getters; absent hardware reports false rather than
// surprising callers with nils.
type Rig struct {
	mu     sync.Mutex
	logger golog.Logger

	relays     relay.Relays
	peltier    pwmactuator.Actuator
	stirrer    pwmactuator.Actuator
	led        pwmactuator.Actuator
	ring       ringlight.RingLight
	tempProbe  sensor.Reader
	co2Sensor  sensor.Reader
	o2Sensor   sensor.Reader
	odChannels map[string]sensor.Reader
	pumps      map[string]chemostat.Channel

	closers []io.Closer
	closed  bool
}

// Parts assembles a Rig from already-built components, for compositions the
// config file cannot express and for tests.
type Parts struct {
	Relays     relay.Relays
	Peltier    pwmactuator.Actuator
	Stirrer    pwmactuator.Actuator
	LED        pwmactuator.Actuator
	RingLight  ringlight.RingLight
	TempProbe  sensor.Reader
	CO2Sensor  sensor.Reader
	O2Sensor   sensor.Reader
	ODChannels map[string]sensor.Reader
	Pumps      map[string]chemostat.Channel
}

// NewFromParts wraps the given components as a Rig.
func NewFromParts(parts Parts, logger golog.Logger) *Rig {
	return &Rig{
		logger:     logger,
		relays:     parts.Relays,
		peltier:    parts.Peltier,
		stirrer:    parts.Stirrer,
		led:        parts.LED,
		ring:       parts.RingLight,
		tempProbe:  parts.TempProbe,
		co2Sensor:  parts.CO2Sensor,
		o2Sensor:   parts.O2Sensor,
		odChannels: parts.ODChannels,
		pumps:      parts.Pumps,
	}
}

// New initializes every device the config enables. Hardware failures are
// logged and leave the capability absent; New itself only fails on a
// context error. Validate the config before calling.
func New(ctx context.Context, cfg *Config, logger golog.Logger) (*Rig, error) {
	hostInitOnce.Do(func() {
		if _, err := host.Init(); err != nil {
			logger.Errorw("error initializing peripheral host drivers", "error", err)
		}
	})

	r := &Rig{logger: logger}

	if cfg.Relays != nil {
		relays, err := gpiorelay.New(*cfg.Relays, logger)
		if err != nil {
			logger.Errorw("relay bank unavailable", "error", err)
		} else {
			r.relays = relays
		}
	}
	if cfg.Peltier != nil {
		r.peltier = r.initPWM(ctx, "peltier", *cfg.Peltier)
	}
	if cfg.Stirrer != nil {
		r.stirrer = r.initPWM(ctx, "stirrer", *cfg.Stirrer)
	}
	if cfg.LED != nil {
		r.led = r.initPWM(ctx, "led", *cfg.LED)
	}
	if cfg.RingLight != nil {
		ring, err := dotstar.New(ctx, *cfg.RingLight, logger)
		if err != nil {
			logger.Errorw("ring light unavailable", "error", err)
		} else {
			r.ring = ring
			r.noteCloser(ring)
		}
	}
	if cfg.TempProbe != nil {
		probe, err := ds18b20.New(*cfg.TempProbe)
		if err != nil {
			logger.Errorw("temperature probe unavailable", "error", err)
		} else {
			r.tempProbe = probe
		}
	}
	if cfg.CO2Sensor != nil {
		co2, err := senseair.New(ctx, *cfg.CO2Sensor, logger)
		if err != nil {
			logger.Errorw("co2 sensor unavailable", "error", err)
		} else {
			r.co2Sensor = co2
			r.noteCloser(co2)
		}
	}
	if cfg.O2Sensor != nil {
		o2, err := atlasezo.New(ctx, *cfg.O2Sensor)
		if err != nil {
			logger.Errorw("o2 sensor unavailable", "error", err)
		} else {
			r.o2Sensor = o2
			r.noteCloser(o2)
		}
	}
	for name, channelCfg := range cfg.ODChannels {
		ch, err := ads1x15.New(ctx, channelCfg)
		if err != nil {
			logger.Errorw("od channel unavailable", "channel", name, "error", err)
			continue
		}
		if r.odChannels == nil {
			r.odChannels = make(map[string]sensor.Reader)
		}
		r.odChannels[name] = ch
		r.noteCloser(ch)
	}
	for name, pumpCfg := range cfg.Pumps {
		p, err := tic.New(ctx, pumpCfg.Controller, logger)
		if err != nil {
			logger.Errorw("pump unavailable", "pump", name, "error", err)
			continue
		}
		if r.pumps == nil {
			r.pumps = make(map[string]chemostat.Channel)
		}
		r.pumps[name] = chemostat.Channel{
			Pump:       p,
			Direction:  pump.Direction(pumpCfg.Direction),
			StepsPerML: pumpCfg.StepsPerML,
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, multierr.Combine(err, r.Close(ctx))
	}
	return r, nil
}

func (r *Rig) initPWM(ctx context.Context, name string, cfg gpiopwm.Config) pwmactuator.Actuator {
	actuator, err := gpiopwm.New(ctx, cfg, r.logger)
	if err != nil {
		r.logger.Errorw("pwm actuator unavailable", "actuator", name, "error", err)
		return nil
	}
	return actuator
}

func (r *Rig) noteCloser(device interface{}) {
	if closer, ok := device.(io.Closer); ok {
		r.closers = append(r.closers, closer)
	}
}

// Relays returns the relay bank, if present.
func (r *Rig) Relays() (relay.Relays, bool) {
	return r.relays, r.relays != nil
}

// Peltier returns the peltier driver, if present.
func (r *Rig) Peltier() (pwmactuator.Actuator, bool) {
	return r.peltier, r.peltier != nil
}

// Stirrer returns the stirrer driver, if present.
func (r *Rig) Stirrer() (pwmactuator.Actuator, bool) {
	return r.stirrer, r.stirrer != nil
}

// LED returns the illuminator driver, if present.
func (r *Rig) LED() (pwmactuator.Actuator, bool) {
	return r.led, r.led != nil
}

// RingLight returns the ring light, if present.
func (r *Rig) RingLight() (ringlight.RingLight, bool) {
	return r.ring, r.ring != nil
}

// TempProbe returns the temperature probe, if present.
func (r *Rig) TempProbe() (sensor.Reader, bool) {
	return r.tempProbe, r.tempProbe != nil
}

// CO2Sensor returns the CO2 sensor, if present.
func (r *Rig) CO2Sensor() (sensor.Reader, bool) {
	return r.co2Sensor, r.co2Sensor != nil
}

// O2Sensor returns the O2 sensor, if present.
func (r *Rig) O2Sensor() (sensor.Reader, bool) {
	return r.o2Sensor, r.o2Sensor != nil
}

// ODChannels returns the optical-density ADC channels, if any are present.
func (r *Rig) ODChannels() (map[string]sensor.Reader, bool) {
	return r.odChannels, len(r.odChannels) > 0
}

// Pumps returns the calibrated dosing pump channels, if any are present.
func (r *Rig) Pumps() (map[string]chemostat.Channel, bool) {
	return r.pumps, len(r.pumps) > 0
}

// Close brings every actuator to a safe state and releases bus handles:
// PWM outputs stopped, ring blanked, pumps de-energized, relays off.
// Errors are aggregated so one stuck device never blocks the rest of the
// shutdown. Safe to call more than once.
func (r *Rig) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	for _, actuator := range []pwmactuator.Actuator{r.peltier, r.stirrer, r.led} {
		if actuator != nil {
			err = multierr.Combine(err, actuator.Stop(ctx))
		}
	}
	if r.ring != nil {
		err = multierr.Combine(err, r.ring.Off(ctx))
	}
	for _, ch := range r.pumps {
		err = multierr.Combine(err, ch.Pump.Deenergize(ctx))
	}
	if r.relays != nil {
		err = multierr.Combine(err, r.relays.AllOff(ctx))
	}
	for _, closer := range r.closers {
		err = multierr.Combine(err, closer.Close())
	}
	r.logger.Infow("rig closed")
	return err
}
