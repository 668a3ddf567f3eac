// Package scheduler runs rig jobs on independent concurrent lanes. Each job
// is a function invoked repeatedly at a target cadence until its duration
// elapses or the scheduler is stopped. A job that fails, or even panics,
// only skips its own tick; other lanes are unaffected.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	goutils "go.viam.com/utils"
)

// Continuous as a Job period means no inter-tick sleep: the action is
// expected to rate-limit itself.
const Continuous time.Duration = 0

// Indefinite as a Job duration means the lane runs until Stop.
const Indefinite time.Duration = 0

// An Action is one tick of a job. elapsed is measured from the lane start.
// A returned error is logged and the lane continues.
type Action func(ctx context.Context, elapsed time.Duration) error

// A Job is a repeatedly invoked action. Jobs are immutable once scheduled.
type Job struct {
	Name     string
	Action   Action
	Period   time.Duration
	Duration time.Duration
}

// A Scheduler owns a set of lanes sharing one stop signal.
type Scheduler struct {
	mu         sync.Mutex
	cancelCtx  context.Context
	cancelFunc func()
	lanes      sync.WaitGroup
	clock      clock.Clock
	logger     golog.Logger
}

// New returns a Scheduler ready to accept jobs.
func New(logger golog.Logger) *Scheduler {
	return newWithClock(logger, clock.New())
}

func newWithClock(logger golog.Logger, clk clock.Clock) *Scheduler {
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	return &Scheduler{
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
		clock:      clk,
		logger:     logger,
	}
}

// Schedule starts one lane per job and returns immediately. Scheduling
// after Stop is a no-op.
func (s *Scheduler) Schedule(jobs ...Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelCtx.Err() != nil {
		s.logger.Warn("scheduler already stopped; ignoring new jobs")
		return
	}

	s.lanes.Add(len(jobs))
	for _, job := range jobs {
		job := job
		goutils.PanicCapturingGo(func() {
			defer s.lanes.Done()
			s.runLane(job)
		})
	}
	s.logger.Infow("jobs scheduled", "count", len(jobs))
}

// Stop signals every lane to terminate at its next loop check and waits for
// them to exit. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.cancelFunc()
	s.lanes.Wait()
}

// Done returns a channel closed once the scheduler has been stopped.
func (s *Scheduler) Done() <-chan struct{} {
	return s.cancelCtx.Done()
}

func (s *Scheduler) runLane(job Job) {
	start := s.clock.Now()
	for {
		if s.cancelCtx.Err() != nil {
			return
		}
		elapsed := s.clock.Since(start)
		if job.Duration != Indefinite && elapsed >= job.Duration {
			return
		}

		tickStart := s.clock.Now()
		s.tick(job, elapsed)

		if job.Period == Continuous {
			continue
		}
		sleep := job.Period - s.clock.Since(tickStart)
		if sleep < 0 {
			sleep = 0
		}
		if !s.wait(sleep) {
			return
		}
	}
}

// tick runs one invocation, containing both errors and panics so the lane
// survives to its next tick.
func (s *Scheduler) tick(job Job, elapsed time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("panic in job; lane continues", "job", job.Name, "panic", r)
		}
	}()
	if err := job.Action(s.cancelCtx, elapsed); err != nil {
		s.logger.Errorw("error in job; lane continues", "job", job.Name, "error", err)
	}
}

// wait sleeps on the scheduler clock, returning false if stopped first.
func (s *Scheduler) wait(d time.Duration) bool {
	if d == 0 {
		return s.cancelCtx.Err() == nil
	}
	timer := s.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-s.cancelCtx.Done():
		return false
	case <-timer.C:
		return true
	}
}
