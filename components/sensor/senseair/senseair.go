// Package senseair reads CO2 concentration from a Senseair K-series sensor
// over its Modbus-ish serial protocol. The sensor reports ppm/10; Read
// returns ppm.
package senseair

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/edaniels/golog"
	slib "github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"

	"github.com/lumenbio/bioreactor/components/sensor"
)

// readCO2Cmd asks for two bytes starting at RAM address 0x08 (CO2 value),
// CRC included.
var readCO2Cmd = []byte{0xFE, 0x44, 0x00, 0x08, 0x02, 0x9F, 0x25}

const (
	responseLen   = 7
	responseDelay = 50 * time.Millisecond
	ppmPerCount   = 10
)

// Config describes the serial attachment.
type Config struct {
	SerialPath string `json:"serial_path"`
	BaudRate   uint   `json:"serial_baud_rate,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.SerialPath == "" {
		return errors.Errorf("%s: expected serial_path", path)
	}
	return nil
}

type co2Sensor struct {
	mu     sync.Mutex
	port   io.ReadWriteCloser
	logger golog.Logger
}

// New opens the serial port and returns the sensor.
func New(ctx context.Context, cfg Config, logger golog.Logger) (sensor.Reader, error) {
	baud := cfg.BaudRate
	if baud == 0 {
		baud = 9600
	}
	options := slib.OpenOptions{
		PortName:        cfg.SerialPath,
		BaudRate:        baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: responseLen,
	}
	port, err := slib.Open(options)
	if err != nil {
		return nil, errors.Wrapf(err, "opening serial port %q", cfg.SerialPath)
	}
	return &co2Sensor{port: port, logger: logger}, nil
}

// Read performs one command/response exchange and returns CO2 in ppm.
func (s *co2Sensor) Read(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.port.Write(readCO2Cmd); err != nil {
		return 0, errors.Wrap(err, "writing read command")
	}
	time.Sleep(responseDelay)
	resp := make([]byte, responseLen)
	if _, err := io.ReadFull(s.port, resp); err != nil {
		return 0, errors.Wrap(err, "reading response")
	}
	if resp[0] != 0xFE || resp[1] != 0x44 {
		return 0, errors.Errorf("unexpected response header % X", resp[:2])
	}
	counts := int(resp[3])<<8 | int(resp[4])
	return float64(counts * ppmPerCount), nil
}

// Close releases the serial port.
func (s *co2Sensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Close()
}
