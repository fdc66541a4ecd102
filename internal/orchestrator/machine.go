// Package orchestrator sequences a run: kick, strafe scan, angle scan, gutter
// prediction, drive and reset, publishing an event after each transition.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"lanebot/internal/config"
	"lanebot/internal/core"
	"lanebot/internal/drive"
	"lanebot/internal/event"
	"lanebot/internal/gutter"
	"lanebot/internal/metrics"
	"lanebot/internal/motion"
	"lanebot/internal/ratelimit"
	"lanebot/internal/scan"
	"lanebot/internal/worker"
)

// ErrAlreadyRunning is returned when Run is called while a run is active.
var ErrAlreadyRunning = errors.New("run already active")

// Options are the physical constants and limits of a run.
type Options struct {
	Diameter     float64
	Lane         gutter.Lane
	Speeds       config.SpeedConfig
	MaxTiltAngle float64
	StartPause   time.Duration
	EndPause     time.Duration
	// PollRate caps bumper reads per second (0 = tight loop).
	PollRate int
	// MaxCycles bounds the number of runs (0 = until cancelled).
	MaxCycles int

	Log     *zap.Logger
	Metrics *metrics.Recorder
	// Pool runs every motor-issuing step. A single-worker pool is created
	// when nil.
	Pool *worker.Pool
}

// OptionsFromConfig maps the loaded configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Diameter:     cfg.Robot.Diameter,
		Lane:         gutter.Lane{Width: cfg.Lane.Width, Length: cfg.Lane.Length},
		Speeds:       cfg.Speeds,
		MaxTiltAngle: cfg.MaxTiltAngle,
		StartPause:   cfg.Pauses.Start,
		EndPause:     cfg.Pauses.End,
		PollRate:     cfg.Sensor.PollRate,
	}
}

// Machine drives the run cycle. State and Cycle may be read from any
// goroutine; Run must only be active once at a time.
type Machine struct {
	opts    Options
	drive   core.Drive
	clock   core.Clock
	pub     event.Publisher
	pool    *worker.Pool
	scanner *scan.Scanner
	motion  *motion.Controller
	log     *zap.Logger
	metrics *metrics.Recorder

	running atomic.Bool
	state   atomic.Int32
	cycle   atomic.Int64
}

// New wires a Machine around d. One bump detector is shared by the kick
// wait and both scans so a held contact never counts twice.
func New(d core.Drive, clock core.Clock, pub event.Publisher, opts Options) *Machine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	pool := opts.Pool
	if pool == nil {
		pool = worker.NewPool(1, log.Named("worker"))
	}

	detector := drive.NewBumpDetector(d)
	pacer := ratelimit.New(opts.PollRate)

	m := &Machine{
		opts:    opts,
		drive:   d,
		clock:   clock,
		pub:     pub,
		pool:    pool,
		scanner: scan.New(d, detector, clock, scan.WithPacer(pacer), scan.WithLogger(log.Named("scan"))),
		motion:  motion.New(d, detector, clock, opts.Diameter, pacer),
		log:     log,
		metrics: opts.Metrics,
	}
	m.state.Store(int32(Stopped))
	return m
}

func (m *Machine) State() RunState { return RunState(m.state.Load()) }

// Cycle returns the 1-based number of the current or last cycle.
func (m *Machine) Cycle() int64 { return m.cycle.Load() }

func (m *Machine) Status() Status {
	return Status{State: m.State().String(), Cycle: m.Cycle()}
}

func (m *Machine) setState(s RunState) {
	prev := RunState(m.state.Swap(int32(s)))
	if prev != s {
		m.metrics.StateChanged(prev.String(), s.String())
	}
}

// Run loops the cycle until ctx is cancelled, a fault occurs, or MaxCycles
// cycles have completed. However it exits, the drive is stopped and a
// cancelled event is published. A cancelled ctx is reported as ctx.Err().
func (m *Machine) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.running.Store(false)

	var err error
	for n := 1; m.opts.MaxCycles == 0 || n <= m.opts.MaxCycles; n++ {
		m.cycle.Store(int64(n))
		if err = m.runCycle(ctx); err != nil {
			break
		}
		m.metrics.CycleFinished("completed")
		m.log.Info("cycle complete", zap.Int("cycle", n))
	}
	return m.finish(err)
}

func (m *Machine) finish(err error) error {
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		m.metrics.CycleFinished("cancelled")
		m.log.Info("run cancelled", zap.Stringer("state", m.State()))
	default:
		m.metrics.CycleFinished("failed")
		m.log.Error("run failed", zap.Stringer("state", m.State()), zap.Error(err))
	}

	// The run context may already be done; the stop must still go out.
	stopErr := m.pool.Do(context.Background(), "stop", func(context.Context) error {
		return m.drive.Stop()
	})
	if stopErr != nil {
		m.log.Warn("stopping drive", zap.Error(stopErr))
		if err != nil {
			err = errors.Join(err, fmt.Errorf("stopping drive: %w", stopErr))
		}
	}

	m.setState(Stopped)
	m.pub.Publish(event.NewCancelled())
	m.log.Info("Stopped.")
	return err
}

// do runs one motor-issuing step on the pool and waits for it.
func (m *Machine) do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	err := m.pool.Do(ctx, name, fn)
	if err != nil && !errors.Is(err, worker.ErrPanic) {
		return fmt.Errorf("%s: %w", name, err)
	}
	return err
}

func (m *Machine) scan(ctx context.Context, model scan.Model) (float64, error) {
	v, err := worker.Call(ctx, m.pool, model.Name+" scan", func(ctx context.Context) (float64, error) {
		return m.scanner.Scan(ctx, model, true)
	})
	if err != nil {
		return 0, err
	}
	m.metrics.ScanResult(model.Name, v)
	return v, nil
}

func (m *Machine) turn(angle, speed float64, stop bool) func(ctx context.Context) error {
	return func(ctx context.Context) error { return m.motion.Turn(ctx, angle, speed, stop) }
}

func (m *Machine) straight(distance, speed float64, stop bool) func(ctx context.Context) error {
	return func(ctx context.Context) error { return m.motion.Drive(ctx, distance, speed, stop) }
}

func (m *Machine) runCycle(ctx context.Context) error {
	sp := m.opts.Speeds
	halfWidth := m.opts.Lane.Width / 2

	m.setState(WaitingForStart)
	m.pub.Publish(event.NewReady())
	m.log.Info("Kick the robot to start.", zap.Int64("cycle", m.Cycle()))
	if err := m.do(ctx, "kick", m.motion.WaitForKick); err != nil {
		return err
	}

	m.setState(Turning)
	m.pub.Publish(event.NewWaitingForStrafe())
	m.log.Info("Turning...")
	if err := m.clock.Sleep(ctx, m.opts.StartPause); err != nil {
		return err
	}
	if err := m.do(ctx, "turning to strafe", m.turn(-90, sp.Turn, true)); err != nil {
		return err
	}

	m.setState(Strafing)
	m.pub.Publish(event.NewStrafe())
	m.log.Info("Strafing...")
	strafePos, err := m.scan(ctx, scan.StrafeModel(m.drive, sp.Strafe, halfWidth))
	if err != nil {
		return err
	}
	m.log.Info("strafe complete", zap.Float64("x_position", strafePos))

	m.setState(Turning)
	m.pub.Publish(event.NewWaitingForAngle(strafePos / halfWidth))
	m.log.Info("Turning...")
	if err := m.do(ctx, "turning to lane", m.turn(90, sp.Turn, true)); err != nil {
		return err
	}

	m.setState(AngleSelecting)
	m.pub.Publish(event.NewAngle())
	m.log.Info("Select angle...")
	heading, err := m.scan(ctx, scan.TiltModel(m.drive, sp.Tilt, m.opts.MaxTiltAngle, m.opts.Diameter))
	if err != nil {
		return err
	}
	m.log.Info("angle complete", zap.Float64("heading", heading))

	plan, err := gutter.Predict(strafePos, heading, m.opts.Lane)
	if err != nil {
		return fmt.Errorf("predicting gutter: %w", err)
	}

	m.setState(Driving)
	m.pub.Publish(event.NewDrive(plan.HeadingDegrees, plan.PredictedGutter))
	m.log.Info("Driving...", zap.Bool("predicted_gutter", plan.PredictedGutter))
	if err := m.driveLegs(ctx, plan); err != nil {
		return err
	}
	if err := m.clock.Sleep(ctx, m.opts.EndPause); err != nil {
		return err
	}
	m.pub.Publish(event.NewEnd())

	m.setState(Resetting)
	m.log.Info("Resetting...")
	return m.resetLegs(ctx, plan, strafePos)
}

func (m *Machine) driveLegs(ctx context.Context, plan gutter.Plan) error {
	sp := m.opts.Speeds
	if !plan.PredictedGutter {
		return m.do(ctx, "driving to end", m.straight(-plan.DistanceToFarEndAlongHeading, sp.Drive, true))
	}
	if err := m.do(ctx, "driving to gutter", m.straight(-plan.DistanceToGutterAlongHeading, sp.Drive, false)); err != nil {
		return err
	}
	if err := m.do(ctx, "turning into gutter", m.turn(plan.HeadingDegrees, sp.GutterTurn, false)); err != nil {
		return err
	}
	return m.do(ctx, "driving gutter", m.straight(-plan.RemainingLaneLengthAfterGutter, sp.Drive, true))
}

// resetLegs retraces driveLegs, then undoes the angle and strafe so the next
// cycle starts from the same spot.
func (m *Machine) resetLegs(ctx context.Context, plan gutter.Plan, strafePos float64) error {
	sp := m.opts.Speeds
	heading := plan.HeadingDegrees

	if plan.PredictedGutter {
		if err := m.do(ctx, "returning along gutter", m.straight(plan.RemainingLaneLengthAfterGutter, sp.Drive, false)); err != nil {
			return err
		}
		if err := m.do(ctx, "turning out of gutter", m.turn(-heading, sp.GutterTurn, false)); err != nil {
			return err
		}
		if err := m.do(ctx, "returning from gutter", m.straight(plan.DistanceToGutterAlongHeading, sp.Drive, true)); err != nil {
			return err
		}
	} else {
		if err := m.do(ctx, "returning from end", m.straight(plan.DistanceToFarEndAlongHeading, sp.Drive, true)); err != nil {
			return err
		}
	}

	steps := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"undoing angle", m.turn(heading, sp.Tilt, true)},
		{"turning to strafe", m.turn(-90, sp.Turn, true)},
		{"undoing strafe", m.straight(strafePos, sp.Strafe, true)},
		{"turning to lane", m.turn(90, sp.Turn, true)},
	}
	for _, s := range steps {
		if err := m.do(ctx, s.name, s.fn); err != nil {
			return err
		}
	}
	return nil
}
