// Package telemetry samples the rig's sensors on a cadence and records the
// readings to an append-only CSV sink.
package telemetry

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/lumenbio/bioreactor/components/pwmactuator"
	"github.com/lumenbio/bioreactor/components/ringlight"
	"github.com/lumenbio/bioreactor/components/sensor"
)

const (
	// ledStabilize is how long the illuminator warms up before sampling.
	ledStabilize = time.Second
	// sampleInterval is the sub-interval between averaged ADC samples.
	sampleInterval = 10 * time.Millisecond
)

// An ODMeter measures optical density: it pulses an illuminator LED, samples
// the photodiode ADC channels repeatedly, and averages out shot noise. A
// ring light in the same enclosure is forced dark during the measurement to
// avoid optical crosstalk.
type ODMeter struct {
	led      pwmactuator.Actuator // may be nil
	channels map[string]sensor.Reader
	ring     ringlight.RingLight // may be nil
	clock    clock.Clock
	logger   golog.Logger
}

// NewODMeter returns a meter over the given photodiode channels. led and
// ring may be nil when the hardware is absent.
func NewODMeter(
	led pwmactuator.Actuator,
	channels map[string]sensor.Reader,
	ring ringlight.RingLight,
	logger golog.Logger,
) *ODMeter {
	return newODMeterWithClock(led, channels, ring, logger, clock.New())
}

func newODMeterWithClock(
	led pwmactuator.Actuator,
	channels map[string]sensor.Reader,
	ring ringlight.RingLight,
	logger golog.Logger,
	clk clock.Clock,
) *ODMeter {
	return &ODMeter{
		led:      led,
		channels: channels,
		ring:     ring,
		clock:    clk,
		logger:   logger,
	}
}

// Measure runs one illuminated measurement and returns the per-channel mean
// voltages. The ring light's prior state is saved, the ring forced off, and
// the state restored before returning, including on the error path. The LED
// is likewise always stopped.
func (m *ODMeter) Measure(
	ctx context.Context,
	ledPower float64,
	averagingDuration time.Duration,
) (map[string]float64, error) {
	if m.ring != nil {
		wasOn := m.ring.IsOn()
		prior := m.ring.Color()
		if err := m.ring.Off(ctx); err != nil {
			return nil, errors.Wrap(err, "blanking ring light")
		}
		defer func() {
			if !wasOn {
				return
			}
			if err := m.ring.SetColor(ctx, prior); err != nil {
				m.logger.Errorw("failed to restore ring light", "error", err)
			}
		}()
	}

	if m.led != nil {
		if err := m.led.Set(ctx, ledPower, true); err != nil {
			return nil, errors.Wrap(err, "turning on illuminator")
		}
		defer func() {
			if err := m.led.Stop(ctx); err != nil {
				m.logger.Errorw("failed to stop illuminator", "error", err)
			}
		}()
		m.clock.Sleep(ledStabilize)
	}

	samples := int(averagingDuration / sampleInterval)
	if samples < 1 {
		samples = 1
	}

	raw := make(map[string][]float64, len(m.channels))
	var readErr error
	for i := 0; i < samples; i++ {
		for label, ch := range m.channels {
			value, err := ch.Read(ctx)
			if err != nil {
				readErr = multierr.Combine(readErr, errors.Wrapf(err, "reading %s", label))
				continue
			}
			raw[label] = append(raw[label], value)
		}
		if i < samples-1 {
			m.clock.Sleep(sampleInterval)
		}
	}
	if readErr != nil {
		return nil, readErr
	}

	means := make(map[string]float64, len(raw))
	for label, values := range raw {
		mean, err := stats.Mean(values)
		if err != nil {
			return nil, errors.Wrapf(err, "averaging %s", label)
		}
		means[label] = mean
	}
	return means, nil
}
