// Package scan locates a physical limit by bounded dead-reckoning oscillation.
//
// The scanner has no absolute position feedback. Position is the integral of
// elapsed wall-clock time times the nominal speed, so its accuracy depends on
// how well the speed model matches the wheels and on loop latency. That drift
// is accepted: the scan only has to be repeatable enough to pick a lane offset
// and a heading.
package scan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"go.uber.org/zap"

	"lanebot/internal/core"
	"lanebot/internal/drive"
	"lanebot/internal/ratelimit"
)

// ErrScanInProgress is returned when a second scan starts while one is running.
var ErrScanInProgress = errors.New("scan already in progress")

// Model describes one kind of scan.
type Model struct {
	Name string
	// HalfRange bounds the oscillation in position units.
	HalfRange float64
	// Rate is the nominal speed in position units per second.
	Rate float64
	// Command starts motion in the given direction.
	Command func(dir core.Direction) error
}

// StrafeModel scans along the lane axis in mm.
func StrafeModel(d core.Drive, speed, halfRange float64) Model {
	velocity := int(math.Ceil(speed))
	return Model{
		Name:      "strafe",
		HalfRange: halfRange,
		Rate:      speed,
		Command: func(dir core.Direction) error {
			return d.DriveStraight(int(dir) * velocity)
		},
	}
}

// TiltModel scans heading in degrees by rotating in place. The wheel surface
// speed is converted to an angular rate around the robot center.
func TiltModel(d core.Drive, speed, maxAngle, diameter float64) Model {
	velocity := int(math.Ceil(speed))
	return Model{
		Name:      "tilt",
		HalfRange: maxAngle,
		Rate:      AngularRate(speed, diameter),
		Command: func(dir core.Direction) error {
			return d.DriveRotate(velocity, dir)
		},
	}
}

// AngularRate converts a wheel surface speed (mm/s) to degrees per second for
// an in-place rotation of a base with the given wheel track diameter.
func AngularRate(speed, diameter float64) float64 {
	return speed / (diameter / 2) / math.Pi * 180
}

// Scanner runs scans against one drive. Only one scan may be active at a time.
type Scanner struct {
	detector *drive.BumpDetector
	drive    core.Drive
	clock    core.Clock
	pacer    *ratelimit.Limiter
	log      *zap.Logger
	active   atomic.Bool
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithPacer limits how often the bumpers are polled.
func WithPacer(l *ratelimit.Limiter) Option {
	return func(s *Scanner) { s.pacer = l }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scanner) { s.log = l }
}

func New(d core.Drive, detector *drive.BumpDetector, clock core.Clock, opts ...Option) *Scanner {
	s := &Scanner{
		detector: detector,
		drive:    d,
		clock:    clock,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan oscillates between -HalfRange and +HalfRange until a bump edge and
// returns the negated position at contact. The first leg moves in the +1
// direction, so a contact after 100 units of forward travel returns -100.
// If stop is set the drive is stopped on a clean exit; on error the caller
// owns stopping.
func (s *Scanner) Scan(ctx context.Context, m Model, stop bool) (float64, error) {
	if !s.active.CompareAndSwap(false, true) {
		return 0, ErrScanInProgress
	}
	defer s.active.Store(false)

	dir := core.Forward
	if err := m.Command(dir); err != nil {
		return 0, fmt.Errorf("%s scan: starting: %w", m.Name, err)
	}

	prev := s.clock.Now()
	pos := 0.0
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := s.pacer.Wait(ctx); err != nil {
			return 0, err
		}
		edge, err := s.detector.Poll()
		if err != nil {
			return 0, fmt.Errorf("%s scan: %w", m.Name, err)
		}

		now := s.clock.Now()
		pos += float64(dir) * now.Sub(prev).Seconds() * m.Rate
		prev = now

		if edge {
			break
		}
		if pos >= m.HalfRange && dir != core.Backward {
			dir = core.Backward
			if err := m.Command(dir); err != nil {
				return 0, fmt.Errorf("%s scan: reversing: %w", m.Name, err)
			}
		} else if pos <= -m.HalfRange && dir != core.Forward {
			dir = core.Forward
			if err := m.Command(dir); err != nil {
				return 0, fmt.Errorf("%s scan: reversing: %w", m.Name, err)
			}
		}
	}

	if stop {
		if err := s.drive.Stop(); err != nil {
			return 0, fmt.Errorf("%s scan: stopping: %w", m.Name, err)
		}
	}
	s.log.Debug("scan contact", zap.String("scan", m.Name), zap.Float64("position", pos))
	return -pos, nil
}
