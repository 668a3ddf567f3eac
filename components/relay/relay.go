// Package relay defines a bank of named relays.
package relay

import (
	"context"

	"github.com/pkg/errors"
)

// Relays is a bank of named relays. Implementations own the underlying
// hardware state; callers query rather than caching.
type Relays interface {
	// On energizes the named relay.
	On(ctx context.Context, name string) error
	// Off de-energizes the named relay.
	Off(ctx context.Context, name string) error
	// State reports whether the named relay is currently on.
	State(ctx context.Context, name string) (bool, error)
	// AllOn energizes every relay in the bank.
	AllOn(ctx context.Context) error
	// AllOff de-energizes every relay in the bank.
	AllOff(ctx context.Context) error
	// Names lists the configured relay names.
	Names() []string
}

// NewUnknownRelayError is returned when a caller addresses a relay name that
// was never configured. This is a config error and propagates.
func NewUnknownRelayError(name string, available []string) error {
	return errors.Errorf("no relay named %q configured, available: %v", name, available)
}
