// Package pump defines the stepper-driven dosing pump contract.
package pump

import "context"

// Direction is the physical sense a pump is plumbed in.
type Direction string

// The two directions a pump can be calibrated for.
const (
	Forward Direction = "forward"
	Reverse Direction = "reverse"
)

// Valid reports whether d is a recognized direction.
func (d Direction) Valid() bool {
	return d == Forward || d == Reverse
}

// A Pump is a stepper dosing pump. Velocity is in microsteps per second,
// signed: positive spins the motor forward. De-energizing releases holding
// current entirely, which is not the same as commanding zero velocity — the
// driver keeps drawing current at velocity zero unless told to let go.
type Pump interface {
	// SetVelocity commands the target velocity in steps per second.
	SetVelocity(ctx context.Context, stepsPerSec int) error
	// Energize enables the stepper driver outputs.
	Energize(ctx context.Context) error
	// Deenergize releases the driver outputs and holding current.
	Deenergize(ctx context.Context) error
	// ExitSafeStart clears the driver's safe-start latch so motion commands
	// take effect.
	ExitSafeStart(ctx context.Context) error
}
