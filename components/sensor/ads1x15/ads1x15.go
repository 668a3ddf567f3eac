// Package ads1x15 reads one single-ended channel of a TI ADS1115/ADS1114
// ADC over I2C and reports it as a voltage. The optical-density photodiode
// amplifiers land on these channels.
package ads1x15

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"

	"github.com/lumenbio/bioreactor/components/sensor"
)

const (
	regConversion = 0x00
	regConfig     = 0x01

	// single-shot, 128 SPS, comparator disabled
	configOSSingle    = 0x8000
	configModeSingle  = 0x0100
	configDR128SPS    = 0x0080
	configCompDisable = 0x0003

	conversionDelay = 9 * time.Millisecond
)

// gainBits maps full-scale range in volts to PGA config bits.
var gainBits = map[float64]uint16{
	6.144: 0x0000,
	4.096: 0x0200,
	2.048: 0x0400,
	1.024: 0x0600,
	0.512: 0x0800,
	0.256: 0x0A00,
}

// Config describes one ADC channel.
type Config struct {
	I2CBus  string  `json:"i2c_bus"`
	Address uint16  `json:"address"`
	Channel int     `json:"channel"`
	GainFSR float64 `json:"gain_fsr,omitempty"` // full-scale range in volts, default 4.096
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.I2CBus == "" {
		return errors.Errorf("%s: expected i2c_bus", path)
	}
	if cfg.Address == 0 {
		return errors.Errorf("%s: expected address", path)
	}
	if cfg.Channel < 0 || cfg.Channel > 3 {
		return errors.Errorf("%s: channel must be 0-3, got %d", path, cfg.Channel)
	}
	if cfg.GainFSR != 0 {
		if _, ok := gainBits[cfg.GainFSR]; !ok {
			return errors.Errorf("%s: unsupported gain_fsr %v", path, cfg.GainFSR)
		}
	}
	return nil
}

type channel struct {
	mu  sync.Mutex
	bus i2c.BusCloser
	dev i2c.Dev
	mux uint16
	fsr float64
	pga uint16
}

// New opens the bus and returns a Reader for the configured channel.
func New(ctx context.Context, cfg Config) (sensor.Reader, error) {
	fsr := cfg.GainFSR
	if fsr == 0 {
		fsr = 4.096
	}
	pga, ok := gainBits[fsr]
	if !ok {
		return nil, errors.Errorf("unsupported gain_fsr %v", fsr)
	}
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, errors.Wrapf(err, "opening I2C bus %q", cfg.I2CBus)
	}
	return &channel{
		bus: bus,
		dev: i2c.Dev{Bus: bus, Addr: cfg.Address},
		mux: 0x4000 + uint16(cfg.Channel)<<12, // AINx vs GND
		fsr: fsr,
		pga: pga,
	}, nil
}

// Read triggers one single-shot conversion and returns the voltage.
func (c *channel) Read(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	config := uint16(configOSSingle) | c.mux | c.pga | configModeSingle | configDR128SPS | configCompDisable
	if err := c.dev.Tx([]byte{regConfig, byte(config >> 8), byte(config)}, nil); err != nil {
		return 0, errors.Wrap(err, "starting conversion")
	}
	time.Sleep(conversionDelay)
	raw := make([]byte, 2)
	if err := c.dev.Tx([]byte{regConversion}, raw); err != nil {
		return 0, errors.Wrap(err, "reading conversion")
	}
	counts := int16(uint16(raw[0])<<8 | uint16(raw[1]))
	return float64(counts) * c.fsr / 32767.0, nil
}

// Close releases the I2C bus.
func (c *channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bus.Close()
}
