// Package fake implements a recording PWM actuator for testing.
package fake

import (
	"context"
	"sync"
)

// A Command is one Set or Stop seen by the fake.
type Command struct {
	Duty    float64
	Forward bool
	Stopped bool
}

// Actuator records every command it receives.
type Actuator struct {
	mu       sync.Mutex
	commands []Command
	err      error
}

// New returns an idle fake actuator.
func New() *Actuator {
	return &Actuator{}
}

// SetError makes subsequent commands fail with err; pass nil to clear.
func (a *Actuator) SetError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

// Set implements pwmactuator.Actuator.
func (a *Actuator) Set(ctx context.Context, duty float64, forward bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.commands = append(a.commands, Command{Duty: duty, Forward: forward})
	return nil
}

// Stop implements pwmactuator.Actuator.
func (a *Actuator) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.commands = append(a.commands, Command{Stopped: true})
	return nil
}

// Commands returns everything recorded so far.
func (a *Actuator) Commands() []Command {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Command, len(a.commands))
	copy(out, a.commands)
	return out
}

// Last returns the most recent command and whether any exists.
func (a *Actuator) Last() (Command, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.commands) == 0 {
		return Command{}, false
	}
	return a.commands[len(a.commands)-1], true
}
