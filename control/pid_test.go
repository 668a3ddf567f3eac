package control

import (
	"context"
	"math"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	fakeactuator "github.com/lumenbio/bioreactor/components/pwmactuator/fake"
	fakesensor "github.com/lumenbio/bioreactor/components/sensor/fake"
	"github.com/lumenbio/bioreactor/utils"
)

func TestHeatsWhenBelowSetpoint(t *testing.T) {
	logger := golog.NewTestLogger(t)
	peltier := fakeactuator.New()
	c := NewTempController(nil, peltier, 37.0, Params{Kp: 2, Ki: 0.1, Kd: 0.5}, logger)

	test.That(t, c.StepReading(context.Background(), 30.0, 1.0), test.ShouldBeNil)

	cmd, ok := peltier.Last()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, cmd.Stopped, test.ShouldBeFalse)
	test.That(t, cmd.Forward, test.ShouldBeTrue)
	test.That(t, cmd.Duty, test.ShouldBeGreaterThan, 0.0)
}

func TestCoolsWhenAboveSetpoint(t *testing.T) {
	logger := golog.NewTestLogger(t)
	peltier := fakeactuator.New()
	c := NewTempController(nil, peltier, 30.0, Params{Kp: 2, Ki: 0.1, Kd: 0.5}, logger)

	test.That(t, c.StepReading(context.Background(), 42.0, 1.0), test.ShouldBeNil)

	cmd, ok := peltier.Last()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, cmd.Stopped, test.ShouldBeFalse)
	test.That(t, cmd.Forward, test.ShouldBeFalse)
	test.That(t, cmd.Duty, test.ShouldBeGreaterThan, 0.0)
}

func TestDutyNeverExceedsMax(t *testing.T) {
	logger := golog.NewTestLogger(t)
	peltier := fakeactuator.New()
	c := NewTempController(nil, peltier, 37.0, Params{Kp: 100, Ki: 10, Kd: 1}, logger)

	// wildly off readings in both directions
	for _, temp := range []float64{-50, 150, 0, 37.0001, 36.9999} {
		test.That(t, c.StepReading(context.Background(), temp, 1.0), test.ShouldBeNil)
	}
	for _, cmd := range peltier.Commands() {
		if cmd.Stopped {
			continue
		}
		test.That(t, cmd.Duty, test.ShouldBeGreaterThanOrEqualTo, 0.0)
		test.That(t, cmd.Duty, test.ShouldBeLessThanOrEqualTo, 70.0)
	}
}

func TestNaNReadingSkipsUpdate(t *testing.T) {
	logger := golog.NewTestLogger(t)
	peltier := fakeactuator.New()
	c := NewTempController(nil, peltier, 37.0, Params{Kp: 2, Ki: 0.1, Kd: 0.5}, logger)

	test.That(t, c.StepReading(context.Background(), 35.0, 1.0), test.ShouldBeNil)
	integralBefore, lastErrBefore := c.State()
	cmdsBefore := len(peltier.Commands())

	test.That(t, c.StepReading(context.Background(), math.NaN(), 1.0), test.ShouldBeNil)

	integralAfter, lastErrAfter := c.State()
	test.That(t, integralAfter, test.ShouldEqual, integralBefore)
	test.That(t, lastErrAfter, test.ShouldEqual, lastErrBefore)
	// no actuator command was issued for the bad sample
	test.That(t, len(peltier.Commands()), test.ShouldEqual, cmdsBefore)
}

func TestFailedProbeReadSkipsUpdate(t *testing.T) {
	logger := golog.NewTestLogger(t)
	probe := fakesensor.New(35.0)
	peltier := fakeactuator.New()
	c := NewTempController(probe, peltier, 37.0, Params{Kp: 2, Ki: 0.1, Kd: 0.5}, logger)

	test.That(t, c.Step(context.Background()), test.ShouldBeNil)
	integralBefore, _ := c.State()

	probe.SetError(context.DeadlineExceeded)
	test.That(t, c.Step(context.Background()), test.ShouldBeNil)

	integralAfter, _ := c.State()
	test.That(t, integralAfter, test.ShouldEqual, integralBefore)
}

func TestIntegralAccumulates(t *testing.T) {
	logger := golog.NewTestLogger(t)
	peltier := fakeactuator.New()
	c := NewTempController(nil, peltier, 37.0, Params{Kp: 1, Ki: 1, Kd: 0}, logger)

	test.That(t, c.StepReading(context.Background(), 36.0, 1.0), test.ShouldBeNil)
	test.That(t, c.StepReading(context.Background(), 36.0, 2.0), test.ShouldBeNil)

	integral, lastErr := c.State()
	test.That(t, integral, test.ShouldAlmostEqual, 3.0)
	test.That(t, lastErr, test.ShouldAlmostEqual, 1.0)
}

func TestZeroOutputStopsActuator(t *testing.T) {
	logger := golog.NewTestLogger(t)
	peltier := fakeactuator.New()
	// pure proportional with zero error yields exactly zero output
	c := NewTempController(nil, peltier, 37.0, Params{Kp: 2}, logger)

	test.That(t, c.StepReading(context.Background(), 37.0, 1.0), test.ShouldBeNil)

	cmd, ok := peltier.Last()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, cmd.Stopped, test.ShouldBeTrue)
}

func TestMissingPeltierIsTolerated(t *testing.T) {
	logger := golog.NewTestLogger(t)
	c := NewTempController(nil, nil, 37.0, Params{Kp: 2}, logger)

	test.That(t, c.StepReading(context.Background(), 30.0, 1.0), test.ShouldBeNil)
	// state still advances so a later-attached actuator picks up mid-loop
	integral, lastErr := c.State()
	test.That(t, integral, test.ShouldAlmostEqual, 7.0)
	test.That(t, lastErr, test.ShouldAlmostEqual, 7.0)
}

func TestReset(t *testing.T) {
	logger := golog.NewTestLogger(t)
	peltier := fakeactuator.New()
	c := NewTempController(nil, peltier, 37.0, Params{Kp: 1, Ki: 1}, logger)

	test.That(t, c.StepReading(context.Background(), 30.0, 1.0), test.ShouldBeNil)
	c.Reset()
	integral, lastErr := c.State()
	test.That(t, integral, test.ShouldEqual, 0.0)
	test.That(t, lastErr, test.ShouldEqual, 0.0)
}

func TestClampHelper(t *testing.T) {
	test.That(t, utils.Clamp(120, 0, 70), test.ShouldEqual, 70.0)
	test.That(t, utils.Clamp(-3, 0, 70), test.ShouldEqual, 0.0)
	test.That(t, utils.Clamp(12.5, 0, 70), test.ShouldEqual, 12.5)
}
