// Package fake implements an in-memory relay bank for testing.
package fake

import (
	"context"
	"sort"
	"sync"

	"github.com/lumenbio/bioreactor/components/relay"
)

// Relays records relay commands without touching hardware.
type Relays struct {
	mu     sync.Mutex
	states map[string]bool
	log    []string
}

// New returns a bank containing the given relay names, all off.
func New(names ...string) *Relays {
	states := make(map[string]bool, len(names))
	for _, name := range names {
		states[name] = false
	}
	return &Relays{states: states}
}

func (r *Relays) set(name string, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.states[name]; !ok {
		return relay.NewUnknownRelayError(name, r.names())
	}
	r.states[name] = on
	verb := "off"
	if on {
		verb = "on"
	}
	r.log = append(r.log, name+":"+verb)
	return nil
}

// On implements relay.Relays.
func (r *Relays) On(ctx context.Context, name string) error {
	return r.set(name, true)
}

// Off implements relay.Relays.
func (r *Relays) Off(ctx context.Context, name string) error {
	return r.set(name, false)
}

// State implements relay.Relays.
func (r *Relays) State(ctx context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	on, ok := r.states[name]
	if !ok {
		return false, relay.NewUnknownRelayError(name, r.names())
	}
	return on, nil
}

// AllOn implements relay.Relays.
func (r *Relays) AllOn(ctx context.Context) error {
	for _, name := range r.Names() {
		if err := r.set(name, true); err != nil {
			return err
		}
	}
	return nil
}

// AllOff implements relay.Relays.
func (r *Relays) AllOff(ctx context.Context) error {
	for _, name := range r.Names() {
		if err := r.set(name, false); err != nil {
			return err
		}
	}
	return nil
}

func (r *Relays) names() []string {
	names := make([]string, 0, len(r.states))
	for name := range r.states {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Names implements relay.Relays.
func (r *Relays) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.names()
}

// Log returns the ordered list of commands seen so far, as "name:on" strings.
func (r *Relays) Log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.log))
	copy(out, r.log)
	return out
}
