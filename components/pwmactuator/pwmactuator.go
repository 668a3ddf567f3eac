// Package pwmactuator defines a duty-cycle driven actuator with an optional
// direction line. Peltier modules, stirrers and illumination LEDs all share
// this contract.
package pwmactuator

import "context"

// An Actuator is a PWM-driven device.
type Actuator interface {
	// Set drives the actuator at the given duty cycle percentage (0-100) in
	// the given direction. Implementations clamp out-of-range duty.
	Set(ctx context.Context, duty float64, forward bool) error
	// Stop releases PWM output entirely. This is distinct from Set(0): some
	// drivers keep the direction line and PWM resources claimed at zero duty.
	Stop(ctx context.Context) error
}
