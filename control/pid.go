// Package control implements the closed-loop temperature controller that
// maps a temperature error to a peltier duty-cycle and direction command.
package control

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"

	"github.com/lumenbio/bioreactor/components/pwmactuator"
	"github.com/lumenbio/bioreactor/components/sensor"
	"github.com/lumenbio/bioreactor/utils"
)

// Params are the PID gains and output shaping knobs.
//
// The integral term is deliberately unclamped: the thermal plant is slow and
// the loop is tuned around that. A prolonged large error (probe unplugged,
// then replugged) will wind the integral up; retune Ki rather than expecting
// anti-windup here.
type Params struct {
	Kp float64
	Ki float64
	Kd float64
	// MaxDuty caps the commanded duty cycle; the peltier hardware limit is
	// 70%. Zero means the default.
	MaxDuty float64
	// DerivativeAlpha is the exponential low-pass coefficient applied to the
	// derivative term to reject sensor-noise spikes (0-1, higher = heavier
	// filtering). Zero means the default of 0.7.
	DerivativeAlpha float64
}

const (
	defaultMaxDuty         = 70.0
	defaultDerivativeAlpha = 0.7
	firstStepDT            = 1.0
)

func (p Params) withDefaults() Params {
	if p.MaxDuty == 0 {
		p.MaxDuty = defaultMaxDuty
	}
	if p.DerivativeAlpha == 0 {
		p.DerivativeAlpha = defaultDerivativeAlpha
	}
	return p
}

// A TempController owns the PID state for one temperature loop. It is built
// once per session and stepped from a single scheduler lane.
type TempController struct {
	mu       sync.Mutex
	temp     sensor.Reader        // may be nil
	peltier  pwmactuator.Actuator // may be nil
	params   Params
	setpoint float64
	clock    clock.Clock
	logger   golog.Logger

	integral       float64
	lastError      float64
	lastDerivative float64
	lastTime       time.Time
}

// NewTempController returns a controller holding setpoint. temp and peltier
// may be nil when the corresponding hardware failed to initialize; the
// controller then degrades to a warning per step instead of faulting.
func NewTempController(
	temp sensor.Reader,
	peltier pwmactuator.Actuator,
	setpoint float64,
	params Params,
	logger golog.Logger,
) *TempController {
	return newTempControllerWithClock(temp, peltier, setpoint, params, logger, clock.New())
}

func newTempControllerWithClock(
	temp sensor.Reader,
	peltier pwmactuator.Actuator,
	setpoint float64,
	params Params,
	logger golog.Logger,
	clk clock.Clock,
) *TempController {
	return &TempController{
		temp:     temp,
		peltier:  peltier,
		params:   params.withDefaults(),
		setpoint: setpoint,
		clock:    clk,
		logger:   logger,
	}
}

// SetSetpoint changes the target temperature.
func (c *TempController) SetSetpoint(setpoint float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setpoint = setpoint
}

// Reset clears the integral, derivative and timing state.
func (c *TempController) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.integral = 0
	c.lastError = 0
	c.lastDerivative = 0
	c.lastTime = time.Time{}
}

// Step reads the probe and advances the loop once, deriving dt from the
// wall-clock delta since the previous step (1s on the first step). A probe
// fault reads as NaN and is skipped without touching controller state.
func (c *TempController) Step(ctx context.Context) error {
	currentTemp := sensor.ReadOrNaN(ctx, c.temp, "temperature", c.logger)

	c.mu.Lock()
	now := c.clock.Now()
	dt := firstStepDT
	if !c.lastTime.IsZero() {
		dt = now.Sub(c.lastTime).Seconds()
	}
	c.lastTime = now
	c.mu.Unlock()

	return c.StepReading(ctx, currentTemp, dt)
}

// StepReading advances the loop once using the provided temperature and dt.
func (c *TempController) StepReading(ctx context.Context, currentTemp, dt float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.setpoint - currentTemp
	if math.IsNaN(err) || math.IsNaN(currentTemp) {
		// a transient probe glitch must not corrupt the integral or leave
		// the actuator chasing stale state
		c.logger.Warnw("temperature reading is NaN; skipping PID update",
			"setpoint", c.setpoint)
		return nil
	}

	c.integral += err * dt

	rawDerivative := 0.0
	if dt > 0 {
		rawDerivative = (err - c.lastError) / dt
	}
	derivative := c.params.DerivativeAlpha*c.lastDerivative +
		(1-c.params.DerivativeAlpha)*rawDerivative
	c.lastDerivative = derivative

	output := c.params.Kp*err + c.params.Ki*c.integral + c.params.Kd*derivative
	duty := utils.Clamp(math.Abs(output), 0, c.params.MaxDuty)
	// positive error means too cold: heat
	heat := output > 0

	c.lastError = err

	if c.peltier == nil {
		c.logger.Warn("peltier driver not available; PID cannot modulate temperature")
		return nil
	}

	var cmdErr error
	if duty > 0 {
		cmdErr = c.peltier.Set(ctx, duty, heat)
	} else {
		// zero output releases the driver rather than holding duty 0
		cmdErr = c.peltier.Stop(ctx)
	}
	if cmdErr != nil {
		c.logger.Errorw("error commanding peltier", "error", cmdErr)
		return nil
	}

	c.logger.Debugw("temperature PID step",
		"setpoint", c.setpoint,
		"current", currentTemp,
		"error", err,
		"output", output,
		"duty", duty,
		"heat", heat,
		"integral", c.integral,
	)
	return nil
}

// State returns the current integral and last error, for inspection.
func (c *TempController) State() (integral, lastError float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.integral, c.lastError
}

// Job wraps the controller as a scheduler action.
func (c *TempController) Job(ctx context.Context, elapsed time.Duration) error {
	return c.Step(ctx)
}
