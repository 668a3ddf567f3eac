package chemostat

import (
	"context"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/lumenbio/bioreactor/components/relay"
	fakerelay "github.com/lumenbio/bioreactor/components/relay/fake"
)

func TestInjectCO2Sequence(t *testing.T) {
	relays := fakerelay.New("co2_solenoid", "dump_valve")
	gas := NewGasSystem(relays, "co2_solenoid", "dump_valve", golog.NewTestLogger(t))

	err := gas.InjectCO2(context.Background(), 0, 5*time.Millisecond)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, relays.Log(), test.ShouldResemble, []string{
		"co2_solenoid:on", "co2_solenoid:off",
	})
	on, err := relays.State(context.Background(), "co2_solenoid")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, on, test.ShouldBeFalse)
}

func TestFlushTankSequence(t *testing.T) {
	relays := fakerelay.New("co2_solenoid", "dump_valve")
	gas := NewGasSystem(relays, "co2_solenoid", "dump_valve", golog.NewTestLogger(t))

	err := gas.FlushTank(context.Background(), 5*time.Millisecond)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, relays.Log(), test.ShouldResemble, []string{
		"dump_valve:on", "dump_valve:off",
	})
}

func TestGasSequencesWithoutRelays(t *testing.T) {
	gas := NewGasSystem(nil, "co2_solenoid", "dump_valve", golog.NewTestLogger(t))

	test.That(t, gas.InjectCO2(context.Background(), 0, time.Millisecond), test.ShouldBeNil)
	test.That(t, gas.FlushTank(context.Background(), time.Millisecond), test.ShouldBeNil)
}

// stickyOffRelays wraps a bank whose Off calls always fail, to exercise the
// mid-sequence fault path.
type stickyOffRelays struct {
	relay.Relays
}

func (s *stickyOffRelays) Off(ctx context.Context, name string) error {
	return errors.Errorf("relay %q is stuck", name)
}

func TestInjectCO2ReportsStuckSolenoid(t *testing.T) {
	inner := fakerelay.New("co2_solenoid", "dump_valve")
	gas := NewGasSystem(&stickyOffRelays{inner}, "co2_solenoid", "dump_valve", golog.NewTestLogger(t))

	err := gas.InjectCO2(context.Background(), 0, time.Millisecond)
	test.That(t, err, test.ShouldNotBeNil)
	// the solenoid was still commanded open first
	test.That(t, inner.Log(), test.ShouldResemble, []string{"co2_solenoid:on"})
}
