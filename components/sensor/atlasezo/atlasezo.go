// Package atlasezo reads an Atlas Scientific EZO-class gas sensor (O2 or
// CO2) over I2C using the simple R query protocol.
package atlasezo

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"

	"github.com/lumenbio/bioreactor/components/sensor"
)

const (
	// the datasheet processing delay for an R command
	readDelay   = 900 * time.Millisecond
	responseLen = 32
	statusOK    = 1
)

// Config describes the sensor attachment.
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

type ezo struct {
	mu  sync.Mutex
	bus i2c.BusCloser
	dev i2c.Dev
}

// New opens the bus and returns the sensor.
func New(ctx context.Context, cfg Config) (sensor.Reader, error) {
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, errors.Wrapf(err, "opening I2C bus %q", cfg.I2CBus)
	}
	return &ezo{bus: bus, dev: i2c.Dev{Bus: bus, Addr: cfg.Address}}, nil
}

// Read issues an R command, waits the processing delay, and parses the
// ASCII reading that comes back.
func (e *ezo) Read(ctx context.Context) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.dev.Tx([]byte("R"), nil); err != nil {
		return 0, errors.Wrap(err, "sending read query")
	}
	time.Sleep(readDelay)
	resp := make([]byte, responseLen)
	if err := e.dev.Tx(nil, resp); err != nil {
		return 0, errors.Wrap(err, "reading response")
	}
	if resp[0] != statusOK {
		return 0, errors.Errorf("sensor returned status %d", resp[0])
	}
	payload := string(bytes.TrimRight(resp[1:], "\x00"))
	value, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing reading %q", payload)
	}
	return value, nil
}

// Close releases the I2C bus.
func (e *ezo) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bus.Close()
}
