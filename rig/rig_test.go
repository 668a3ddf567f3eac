package rig

import (
	"context"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"github.com/lumenbio/bioreactor/chemostat"
	"github.com/lumenbio/bioreactor/components/pump"
	fakepump "github.com/lumenbio/bioreactor/components/pump/fake"
	fakeactuator "github.com/lumenbio/bioreactor/components/pwmactuator/fake"
	fakerelay "github.com/lumenbio/bioreactor/components/relay/fake"
	"github.com/lumenbio/bioreactor/components/ringlight"
	fakering "github.com/lumenbio/bioreactor/components/ringlight/fake"
	"github.com/lumenbio/bioreactor/components/sensor"
	fakesensor "github.com/lumenbio/bioreactor/components/sensor/fake"
)

func TestCapabilityGetters(t *testing.T) {
	logger := golog.NewTestLogger(t)
	peltier := fakeactuator.New()
	probe := fakesensor.New(36.8)
	r := NewFromParts(Parts{Peltier: peltier, TempProbe: probe}, logger)

	got, ok := r.Peltier()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, got, test.ShouldEqual, peltier)

	gotProbe, ok := r.TempProbe()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, gotProbe, test.ShouldEqual, probe)

	_, ok = r.Stirrer()
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = r.RingLight()
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = r.Pumps()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestCloseBringsEverythingToSafeState(t *testing.T) {
	logger := golog.NewTestLogger(t)
	peltier := fakeactuator.New()
	stirrer := fakeactuator.New()
	ring := fakering.New()
	relays := fakerelay.New("co2_solenoid", "dump_valve")
	inflow := fakepump.New()

	ctx := context.Background()
	test.That(t, peltier.Set(ctx, 40, true), test.ShouldBeNil)
	test.That(t, ring.SetColor(ctx, ringlight.Color{R: 255}), test.ShouldBeNil)
	test.That(t, relays.On(ctx, "co2_solenoid"), test.ShouldBeNil)
	test.That(t, inflow.SetVelocity(ctx, 40000), test.ShouldBeNil)

	r := NewFromParts(Parts{
		Relays:    relays,
		Peltier:   peltier,
		Stirrer:   stirrer,
		RingLight: ring,
		Pumps: map[string]chemostat.Channel{
			"inflow": {Pump: inflow, Direction: pump.Forward, StepsPerML: 1e7},
		},
	}, logger)

	test.That(t, r.Close(ctx), test.ShouldBeNil)

	last, ok := peltier.Last()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, last.Stopped, test.ShouldBeTrue)
	test.That(t, ring.IsOn(), test.ShouldBeFalse)
	on, err := relays.State(ctx, "co2_solenoid")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, on, test.ShouldBeFalse)
	test.That(t, inflow.Velocity(), test.ShouldEqual, 0)
}

func TestCloseIsIdempotent(t *testing.T) {
	logger := golog.NewTestLogger(t)
	peltier := fakeactuator.New()
	r := NewFromParts(Parts{Peltier: peltier}, logger)

	ctx := context.Background()
	test.That(t, r.Close(ctx), test.ShouldBeNil)
	commands := len(peltier.Commands())
	test.That(t, r.Close(ctx), test.ShouldBeNil)
	test.That(t, peltier.Commands(), test.ShouldHaveLength, commands)
}

func TestODChannelsGetter(t *testing.T) {
	logger := golog.NewTestLogger(t)
	r := NewFromParts(Parts{
		ODChannels: map[string]sensor.Reader{"OD_600": fakesensor.New(1.0)},
	}, logger)

	channels, ok := r.ODChannels()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, channels, test.ShouldHaveLength, 1)
}
