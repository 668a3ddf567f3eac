package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"
)

func TestStopIsIdempotent(t *testing.T) {
	logger := golog.NewTestLogger(t)
	s := New(logger)

	var ticks atomic.Int64
	s.Schedule(Job{
		Name: "counter",
		Action: func(ctx context.Context, elapsed time.Duration) error {
			ticks.Add(1)
			return nil
		},
		Period:   5 * time.Millisecond,
		Duration: Indefinite,
	})

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		test.That(tb, ticks.Load(), test.ShouldBeGreaterThan, 1)
	})

	s.Stop()
	s.Stop()
	s.Stop()

	after := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	test.That(t, ticks.Load(), test.ShouldEqual, after)

	// scheduling after stop must not start new lanes
	s.Schedule(Job{
		Name: "late",
		Action: func(ctx context.Context, elapsed time.Duration) error {
			ticks.Add(1)
			return nil
		},
		Period:   time.Millisecond,
		Duration: Indefinite,
	})
	time.Sleep(20 * time.Millisecond)
	test.That(t, ticks.Load(), test.ShouldEqual, after)
}

func TestFaultIsolation(t *testing.T) {
	logger := golog.NewTestLogger(t)
	s := New(logger)
	defer s.Stop()

	var healthy atomic.Int64
	s.Schedule(
		Job{
			Name: "broken",
			Action: func(ctx context.Context, elapsed time.Duration) error {
				return errors.New("always fails")
			},
			Period:   5 * time.Millisecond,
			Duration: Indefinite,
		},
		Job{
			Name: "panics",
			Action: func(ctx context.Context, elapsed time.Duration) error {
				panic("boom")
			},
			Period:   5 * time.Millisecond,
			Duration: Indefinite,
		},
		Job{
			Name: "healthy",
			Action: func(ctx context.Context, elapsed time.Duration) error {
				healthy.Add(1)
				return nil
			},
			Period:   5 * time.Millisecond,
			Duration: Indefinite,
		},
	)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		test.That(tb, healthy.Load(), test.ShouldBeGreaterThan, 5)
	})
}

func TestLaneTiming(t *testing.T) {
	logger := golog.NewTestLogger(t)
	mock := clock.NewMock()
	s := newWithClock(logger, mock)
	defer s.Stop()

	var ticks atomic.Int64
	s.Schedule(Job{
		Name: "sampler",
		Action: func(ctx context.Context, elapsed time.Duration) error {
			ticks.Add(1)
			return nil
		},
		Period:   2 * time.Second,
		Duration: 6 * time.Second,
	})

	// first tick happens at lane start without any clock advance
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		test.That(tb, ticks.Load(), test.ShouldEqual, 1)
	})

	// advance mock time in small steps, yielding between them so the lane's
	// timer is always registered before time moves past it
	advance := func(d time.Duration) {
		for moved := time.Duration(0); moved < d; moved += 10 * time.Millisecond {
			time.Sleep(time.Millisecond)
			mock.Add(10 * time.Millisecond)
		}
	}

	advance(2 * time.Second)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		test.That(tb, ticks.Load(), test.ShouldEqual, 2)
	})

	advance(2 * time.Second)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		test.That(tb, ticks.Load(), test.ShouldEqual, 3)
	})

	// past the 6s duration the lane is gone: no fourth invocation
	advance(3 * time.Second)
	time.Sleep(20 * time.Millisecond)
	test.That(t, ticks.Load(), test.ShouldEqual, 3)
}

func TestContinuousPeriod(t *testing.T) {
	logger := golog.NewTestLogger(t)
	s := New(logger)

	var ticks atomic.Int64
	s.Schedule(Job{
		Name: "spinner",
		Action: func(ctx context.Context, elapsed time.Duration) error {
			ticks.Add(1)
			// continuous jobs self-rate-limit
			time.Sleep(time.Millisecond)
			return nil
		},
		Period:   Continuous,
		Duration: Indefinite,
	})

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		test.That(tb, ticks.Load(), test.ShouldBeGreaterThan, 3)
	})
	s.Stop()
}

func TestOverrunningActionClampsSleep(t *testing.T) {
	logger := golog.NewTestLogger(t)
	s := New(logger)
	defer s.Stop()

	var ticks atomic.Int64
	s.Schedule(Job{
		Name: "slow",
		Action: func(ctx context.Context, elapsed time.Duration) error {
			ticks.Add(1)
			time.Sleep(10 * time.Millisecond) // longer than the period
			return nil
		},
		Period:   time.Millisecond,
		Duration: Indefinite,
	})

	// overruns are tolerated: the job keeps getting invoked back to back
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		test.That(tb, ticks.Load(), test.ShouldBeGreaterThan, 2)
	})
}
