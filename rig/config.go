package rig

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/lumenbio/bioreactor/components/pump"
	"github.com/lumenbio/bioreactor/components/pump/tic"
	"github.com/lumenbio/bioreactor/components/pwmactuator/gpiopwm"
	"github.com/lumenbio/bioreactor/components/relay/gpiorelay"
	"github.com/lumenbio/bioreactor/components/ringlight/dotstar"
	"github.com/lumenbio/bioreactor/components/sensor/ads1x15"
	"github.com/lumenbio/bioreactor/components/sensor/atlasezo"
	"github.com/lumenbio/bioreactor/components/sensor/ds18b20"
	"github.com/lumenbio/bioreactor/components/sensor/senseair"
)

// A PumpConfig is one dosing pump: the Tic controller attachment plus the
// plumbing calibration.
type PumpConfig struct {
	Controller tic.Config `json:"controller"`
	Direction  string     `json:"direction"`
	StepsPerML float64    `json:"steps_per_ml"`
}

// Validate ensures all parts of the config are valid.
func (cfg *PumpConfig) Validate(path string) error {
	if err := cfg.Controller.Validate(path + ".controller"); err != nil {
		return err
	}
	if !pump.Direction(cfg.Direction).Valid() {
		return errors.Errorf("%s: direction must be %q or %q, got %q",
			path, pump.Forward, pump.Reverse, cfg.Direction)
	}
	if cfg.StepsPerML <= 0 {
		return errors.Errorf("%s: steps_per_ml must be positive, got %v", path, cfg.StepsPerML)
	}
	return nil
}

// Config declares which devices the rig carries and how they are attached.
// Nil sections are disabled; a disabled device's capability is simply absent
// at runtime.
type Config struct {
	Relays     *gpiorelay.Config         `json:"relays,omitempty"`
	Peltier    *gpiopwm.Config           `json:"peltier,omitempty"`
	Stirrer    *gpiopwm.Config           `json:"stirrer,omitempty"`
	LED        *gpiopwm.Config           `json:"led,omitempty"`
	RingLight  *dotstar.Config           `json:"ring_light,omitempty"`
	TempProbe  *ds18b20.Config           `json:"temp_probe,omitempty"`
	CO2Sensor  *senseair.Config          `json:"co2_sensor,omitempty"`
	O2Sensor   *atlasezo.Config          `json:"o2_sensor,omitempty"`
	ODChannels map[string]ads1x15.Config `json:"od_channels,omitempty"`
	Pumps      map[string]PumpConfig     `json:"pumps,omitempty"`
}

// Validate ensures all enabled sections are valid. Config errors propagate;
// they are not the log-and-degrade kind.
func (cfg *Config) Validate(path string) error {
	if cfg.Relays != nil {
		if err := cfg.Relays.Validate(path + ".relays"); err != nil {
			return err
		}
	}
	if cfg.Peltier != nil {
		if err := cfg.Peltier.Validate(path + ".peltier"); err != nil {
			return err
		}
	}
	if cfg.Stirrer != nil {
		if err := cfg.Stirrer.Validate(path + ".stirrer"); err != nil {
			return err
		}
	}
	if cfg.LED != nil {
		if err := cfg.LED.Validate(path + ".led"); err != nil {
			return err
		}
	}
	if cfg.RingLight != nil {
		if err := cfg.RingLight.Validate(path + ".ring_light"); err != nil {
			return err
		}
	}
	if cfg.TempProbe != nil {
		if err := cfg.TempProbe.Validate(path + ".temp_probe"); err != nil {
			return err
		}
	}
	if cfg.CO2Sensor != nil {
		if err := cfg.CO2Sensor.Validate(path + ".co2_sensor"); err != nil {
			return err
		}
	}
	if cfg.O2Sensor != nil {
		if err := cfg.O2Sensor.Validate(path + ".o2_sensor"); err != nil {
			return err
		}
	}
	for name, channel := range cfg.ODChannels {
		channel := channel
		if err := channel.Validate(fmt.Sprintf("%s.od_channels.%s", path, name)); err != nil {
			return err
		}
	}
	for name, pumpCfg := range cfg.Pumps {
		pumpCfg := pumpCfg
		if err := pumpCfg.Validate(fmt.Sprintf("%s.pumps.%s", path, name)); err != nil {
			return err
		}
	}
	return nil
}

// ReadConfig loads and validates a JSON rig config from disk.
func ReadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %q", path)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %q", path)
	}
	if err := cfg.Validate("rig"); err != nil {
		return nil, err
	}
	return &cfg, nil
}
