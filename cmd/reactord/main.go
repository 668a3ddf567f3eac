// reactord runs a bioreactor session: it builds the rig from a config
// file, schedules the control and telemetry jobs, and shuts everything
// down safely on interrupt or when the session duration elapses.
package main

import (
	"context"
	"os"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/lumenbio/bioreactor/chemostat"
	"github.com/lumenbio/bioreactor/components/sensor"
	"github.com/lumenbio/bioreactor/control"
	"github.com/lumenbio/bioreactor/rig"
	"github.com/lumenbio/bioreactor/scheduler"
	"github.com/lumenbio/bioreactor/telemetry"
)

func main() {
	goutils.ContextualMain(mainWithArgs, golog.NewLogger("reactord"))
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	app := &cli.App{
		Name:  "reactord",
		Usage: "run a bioreactor session",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Usage:    "path to the rig config JSON",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "output",
				Usage: "CSV file to record sensor rows to",
				Value: "session.csv",
			},
			&cli.DurationFlag{
				Name:  "session-duration",
				Usage: "how long to run; 0 runs until interrupted",
			},
			&cli.DurationFlag{
				Name:  "record-period",
				Usage: "sensor recording cadence",
				Value: 30 * time.Second,
			},
			&cli.DurationFlag{
				Name:  "pid-period",
				Usage: "temperature control cadence",
				Value: 5 * time.Second,
			},
			&cli.Float64Flag{
				Name:  "setpoint",
				Usage: "temperature setpoint in degrees C; 0 disables the PID loop",
			},
			&cli.Float64Flag{
				Name:  "kp",
				Usage: "PID proportional gain",
				Value: 20,
			},
			&cli.Float64Flag{
				Name:  "ki",
				Usage: "PID integral gain",
				Value: 0.1,
			},
			&cli.Float64Flag{
				Name:  "kd",
				Usage: "PID derivative gain",
				Value: 5,
			},
			&cli.Float64Flag{
				Name:  "flow-rate",
				Usage: "balanced flow rate in ml/s; 0 disables dosing",
			},
			&cli.StringFlag{
				Name:  "primary-pump",
				Usage: "primary pump for balanced flow",
				Value: "inflow",
			},
			&cli.Float64Flag{
				Name:  "led-power",
				Usage: "illuminator duty for optical density measurement",
				Value: 50,
			},
			&cli.DurationFlag{
				Name:  "od-averaging",
				Usage: "how long to average optical density samples",
				Value: time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			return runSession(c.Context, c, logger)
		},
	}
	app.HideHelpCommand = true

	cliCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	return app.RunContext(cliCtx, args)
}

func runSession(ctx context.Context, c *cli.Context, logger golog.Logger) error {
	cfg, err := rig.ReadConfig(c.String("config"))
	if err != nil {
		return err
	}
	r, err := rig.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Close(context.Background()); err != nil {
			logger.Errorw("error closing rig", "error", err)
		}
	}()

	sensors := map[string]sensor.Reader{}
	if probe, ok := r.TempProbe(); ok {
		sensors["temp_C"] = probe
	}
	if co2, ok := r.CO2Sensor(); ok {
		sensors["CO2_ppm"] = co2
	}
	if o2, ok := r.O2Sensor(); ok {
		sensors["O2_percent"] = o2
	}

	var od *telemetry.ODConfig
	if channels, ok := r.ODChannels(); ok {
		led, _ := r.LED()
		ring, _ := r.RingLight()
		od = &telemetry.ODConfig{
			Meter:             telemetry.NewODMeter(led, channels, ring, logger),
			LEDPower:          c.Float64("led-power"),
			AveragingDuration: c.Duration("od-averaging"),
		}
	}

	outPath := c.String("output")
	outFile, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrapf(err, "opening output %q", outPath)
	}
	recorder := telemetry.NewRecorder(sensors, od, nil, logger)
	sink, err := telemetry.NewCSVSink(outFile, recorder.Labels())
	if err != nil {
		return multierr.Combine(err, outFile.Close())
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Errorw("error closing CSV sink", "error", err)
		}
	}()
	recorder = telemetry.NewRecorder(sensors, od, sink, logger)

	duration := c.Duration("session-duration")
	jobs := []scheduler.Job{{
		Name:     "record",
		Action:   recorder.Job,
		Period:   c.Duration("record-period"),
		Duration: duration,
	}}

	if setpoint := c.Float64("setpoint"); setpoint > 0 {
		probe, _ := r.TempProbe()
		peltier, _ := r.Peltier()
		controller := control.NewTempController(probe, peltier, setpoint, control.Params{
			Kp: c.Float64("kp"),
			Ki: c.Float64("ki"),
			Kd: c.Float64("kd"),
		}, logger)
		jobs = append(jobs, scheduler.Job{
			Name:     "temperature_pid",
			Action:   controller.Job,
			Period:   c.Duration("pid-period"),
			Duration: duration,
		})
	}

	if rate := c.Float64("flow-rate"); rate > 0 {
		pumps, ok := r.Pumps()
		if !ok {
			return errors.New("flow-rate set but no pumps configured")
		}
		coord := chemostat.New(pumps, logger)
		defer func() {
			if err := coord.StopAll(context.Background()); err != nil {
				logger.Errorw("error stopping pumps", "error", err)
			}
		}()
		jobs = append(jobs, scheduler.Job{
			Name:     "balanced_flow",
			Action:   coord.Job(c.String("primary-pump"), rate),
			Period:   time.Minute,
			Duration: duration,
		})
	}

	sched := scheduler.New(logger)
	sched.Schedule(jobs...)
	defer sched.Stop()

	logger.Infow("session started",
		"config", c.String("config"), "output", outPath, "duration", duration)

	if duration > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(duration):
		}
		return nil
	}
	<-ctx.Done()
	return nil
}
