// Package ds18b20 reads a DS18B20 1-wire temperature probe through the
// kernel w1-therm sysfs interface.
package ds18b20

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/lumenbio/bioreactor/components/sensor"
)

const devicesDir = "/sys/bus/w1/devices"

// Config identifies one probe by its 1-wire serial (e.g. "28-3c01d607e3c8").
type Config struct {
	Serial string `json:"serial"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Serial == "" {
		return errors.Errorf("%s: expected serial", path)
	}
	return nil
}

type probe struct {
	slavePath string
}

// New returns a Reader for the configured probe, verifying it is present.
func New(cfg Config) (sensor.Reader, error) {
	slavePath := filepath.Join(devicesDir, cfg.Serial, "w1_slave")
	if _, err := os.Stat(slavePath); err != nil {
		return nil, errors.Wrapf(err, "probe %q not present", cfg.Serial)
	}
	return &probe{slavePath: slavePath}, nil
}

// Enumerate lists the serials of all attached DS18B20 probes, in sysfs order.
func Enumerate() ([]string, error) {
	entries, err := os.ReadDir(devicesDir)
	if err != nil {
		return nil, errors.Wrap(err, "listing 1-wire devices")
	}
	var serials []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "28-") {
			serials = append(serials, e.Name())
		}
	}
	return serials, nil
}

// Read returns the probe temperature in degrees Celsius.
func (p *probe) Read(ctx context.Context) (float64, error) {
	raw, err := os.ReadFile(p.slavePath)
	if err != nil {
		return 0, errors.Wrap(err, "reading w1_slave")
	}
	return parse(string(raw))
}

// parse decodes the two-line w1_slave format: a CRC line ending in YES/NO
// and a data line ending in t=<millidegrees>.
func parse(raw string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	if len(lines) < 2 {
		return 0, errors.Errorf("malformed w1_slave output: %q", raw)
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, errors.New("probe CRC check failed")
	}
	idx := strings.LastIndex(lines[1], "t=")
	if idx < 0 {
		return 0, errors.Errorf("no temperature in w1_slave output: %q", lines[1])
	}
	milli, err := strconv.Atoi(strings.TrimSpace(lines[1][idx+2:]))
	if err != nil {
		return 0, errors.Wrap(err, "parsing temperature")
	}
	return float64(milli) / 1000.0, nil
}
