// Package fake implements a recording pump for testing.
package fake

import (
	"context"
	"sync"
)

// Op names for the recorded command log.
const (
	OpSetVelocity   = "set_velocity"
	OpEnergize      = "energize"
	OpDeenergize    = "deenergize"
	OpExitSafeStart = "exit_safe_start"
)

// A Command is one recorded pump operation.
type Command struct {
	Op          string
	StepsPerSec int
}

// Pump records every command it receives.
type Pump struct {
	mu       sync.Mutex
	commands []Command
	velocity int
	err      error
}

// New returns an idle fake pump.
func New() *Pump {
	return &Pump{}
}

// SetError makes subsequent commands fail with err; pass nil to clear.
func (p *Pump) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *Pump) record(cmd Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.commands = append(p.commands, cmd)
	switch cmd.Op {
	case OpSetVelocity:
		p.velocity = cmd.StepsPerSec
	case OpDeenergize:
		p.velocity = 0
	}
	return nil
}

// SetVelocity implements pump.Pump.
func (p *Pump) SetVelocity(ctx context.Context, stepsPerSec int) error {
	return p.record(Command{Op: OpSetVelocity, StepsPerSec: stepsPerSec})
}

// Energize implements pump.Pump.
func (p *Pump) Energize(ctx context.Context) error {
	return p.record(Command{Op: OpEnergize})
}

// Deenergize implements pump.Pump.
func (p *Pump) Deenergize(ctx context.Context) error {
	return p.record(Command{Op: OpDeenergize})
}

// ExitSafeStart implements pump.Pump.
func (p *Pump) ExitSafeStart(ctx context.Context) error {
	return p.record(Command{Op: OpExitSafeStart})
}

// Velocity returns the last commanded velocity (zero after Deenergize).
func (p *Pump) Velocity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.velocity
}

// Commands returns everything recorded so far.
func (p *Pump) Commands() []Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Command, len(p.commands))
	copy(out, p.commands)
	return out
}

// Ops returns just the operation names, in order.
func (p *Pump) Ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ops := make([]string, len(p.commands))
	for i, cmd := range p.commands {
		ops[i] = cmd.Op
	}
	return ops
}
