// Package sensor defines an abstract scalar sensing device, plus helpers for
// reading it without letting a hardware fault escape the polling cycle.
package sensor

import (
	"context"
	"math"

	"github.com/edaniels/golog"
)

// A Reader represents a sensor that produces a single scalar reading, such as
// a temperature probe, a gas concentration sensor, or one ADC channel.
type Reader interface {
	// Read returns the current value in the sensor's natural unit.
	Read(ctx context.Context) (float64, error)
}

// ReadOrNaN reads from r, converting any fault into NaN so one bad sensor
// never halts the cycle that polls it. A nil reader (capability absent)
// also yields NaN. The fault is logged, not propagated.
func ReadOrNaN(ctx context.Context, r Reader, label string, logger golog.Logger) float64 {
	if r == nil {
		return math.NaN()
	}
	value, err := r.Read(ctx)
	if err != nil {
		logger.Errorw("error reading sensor", "sensor", label, "error", err)
		return math.NaN()
	}
	return value
}

// ReaderFunc adapts a plain function into a Reader.
type ReaderFunc func(ctx context.Context) (float64, error)

// Read calls f.
func (f ReaderFunc) Read(ctx context.Context) (float64, error) {
	return f(ctx)
}
