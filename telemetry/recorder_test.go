package telemetry

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/lumenbio/bioreactor/components/sensor"
	fakesensor "github.com/lumenbio/bioreactor/components/sensor/fake"
)

type memorySink struct {
	rows []Row
	err  error
}

func (s *memorySink) WriteRow(row Row) error {
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, row)
	return nil
}

func TestMeasureAndRecord(t *testing.T) {
	logger := golog.NewTestLogger(t)
	sink := &memorySink{}
	r := NewRecorder(map[string]sensor.Reader{
		"temp_C":  fakesensor.New(36.8),
		"CO2_ppm": fakesensor.New(412),
	}, nil, sink, logger)

	row, err := r.MeasureAndRecord(context.Background(), 30*time.Second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, row.Elapsed, test.ShouldEqual, 30*time.Second)
	test.That(t, row.Values["temp_C"], test.ShouldAlmostEqual, 36.8)
	test.That(t, row.Values["CO2_ppm"], test.ShouldAlmostEqual, 412.0)
	test.That(t, sink.rows, test.ShouldHaveLength, 1)
}

func TestFaultySensorDoesNotSpoilCycle(t *testing.T) {
	logger := golog.NewTestLogger(t)
	broken := fakesensor.New(0)
	broken.SetError(errors.New("probe unplugged"))
	sink := &memorySink{}
	r := NewRecorder(map[string]sensor.Reader{
		"temp_C":  broken,
		"CO2_ppm": fakesensor.New(412),
	}, nil, sink, logger)

	row, err := r.MeasureAndRecord(context.Background(), 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, math.IsNaN(row.Values["temp_C"]), test.ShouldBeTrue)
	test.That(t, row.Values["CO2_ppm"], test.ShouldAlmostEqual, 412.0)
	test.That(t, sink.rows, test.ShouldHaveLength, 1)
}

func TestDisabledSensorsAreOmitted(t *testing.T) {
	logger := golog.NewTestLogger(t)
	r := NewRecorder(map[string]sensor.Reader{
		"temp_C": fakesensor.New(36.8),
	}, nil, nil, logger)

	row, err := r.MeasureAndRecord(context.Background(), 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, row.Values, test.ShouldHaveLength, 1)
	_, present := row.Values["CO2_ppm"]
	test.That(t, present, test.ShouldBeFalse)
}

func TestRecorderIncludesODChannels(t *testing.T) {
	logger := golog.NewTestLogger(t)
	meter := NewODMeter(nil, map[string]sensor.Reader{
		"OD_600": fakesensor.New(1.1),
	}, nil, logger)
	sink := &memorySink{}
	r := NewRecorder(map[string]sensor.Reader{
		"temp_C": fakesensor.New(36.8),
	}, &ODConfig{Meter: meter, LEDPower: 50}, sink, logger)

	row, err := r.MeasureAndRecord(context.Background(), 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, row.Values["OD_600"], test.ShouldAlmostEqual, 1.1)
	test.That(t, row.Values["temp_C"], test.ShouldAlmostEqual, 36.8)
	test.That(t, r.Labels(), test.ShouldResemble, []string{"OD_600", "temp_C"})
}

func TestFailedODMeasurementRecordsNaN(t *testing.T) {
	logger := golog.NewTestLogger(t)
	broken := fakesensor.New(0)
	broken.SetError(errors.New("adc gone"))
	meter := NewODMeter(nil, map[string]sensor.Reader{"OD_600": broken}, nil, logger)
	sink := &memorySink{}
	r := NewRecorder(map[string]sensor.Reader{
		"temp_C": fakesensor.New(36.8),
	}, &ODConfig{Meter: meter, LEDPower: 50}, sink, logger)

	row, err := r.MeasureAndRecord(context.Background(), 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, math.IsNaN(row.Values["OD_600"]), test.ShouldBeTrue)
	test.That(t, row.Values["temp_C"], test.ShouldAlmostEqual, 36.8)
}
