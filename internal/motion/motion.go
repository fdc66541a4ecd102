// Package motion implements timed, open-loop turns and straight drives.
package motion

import (
	"context"
	"fmt"
	"math"
	"time"

	"lanebot/internal/core"
	"lanebot/internal/drive"
	"lanebot/internal/ratelimit"
)

// Controller issues timed motions on a drive. Durations are derived from the
// nominal wheel speed, so like the scanner it dead-reckons.
type Controller struct {
	drive    core.Drive
	detector *drive.BumpDetector
	clock    core.Clock
	diameter float64
	pacer    *ratelimit.Limiter
}

// New creates a Controller for a base with the given wheel track diameter (mm).
// pacer may be nil.
func New(d core.Drive, detector *drive.BumpDetector, clock core.Clock, diameter float64, pacer *ratelimit.Limiter) *Controller {
	return &Controller{
		drive:    d,
		detector: detector,
		clock:    clock,
		diameter: diameter,
		pacer:    pacer,
	}
}

// TurnDuration is how long an in-place rotation of angle degrees takes at
// speed mm/s.
func TurnDuration(angle, speed, diameter float64) time.Duration {
	return seconds(math.Abs(angle) * math.Pi / 180 * (diameter / 2) / speed)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Turn rotates in place by angle degrees; positive is counter-clockwise.
func (c *Controller) Turn(ctx context.Context, angle, speed float64, stop bool) error {
	dir := core.Forward
	if angle < 0 {
		dir = core.Backward
	}
	if err := c.drive.DriveRotate(int(math.Ceil(speed)), dir); err != nil {
		return fmt.Errorf("turn %.1f°: %w", angle, err)
	}
	if err := c.clock.Sleep(ctx, TurnDuration(angle, speed, c.diameter)); err != nil {
		return err
	}
	if stop {
		if err := c.drive.Stop(); err != nil {
			return fmt.Errorf("turn %.1f°: stopping: %w", angle, err)
		}
	}
	return nil
}

// Drive moves straight by distance mm; negative is backward. The sign of
// speed is ignored.
func (c *Controller) Drive(ctx context.Context, distance, speed float64, stop bool) error {
	if (distance < 0) != (speed < 0) {
		speed = -speed
	}
	velocity := int(math.Ceil(speed))
	if speed < 0 {
		velocity = int(math.Floor(speed))
	}
	if err := c.drive.DriveStraight(velocity); err != nil {
		return fmt.Errorf("drive %.1fmm: %w", distance, err)
	}
	if err := c.clock.Sleep(ctx, seconds(distance/speed)); err != nil {
		return err
	}
	if stop {
		if err := c.drive.Stop(); err != nil {
			return fmt.Errorf("drive %.1fmm: stopping: %w", distance, err)
		}
	}
	return nil
}

// WaitForKick blocks until the bumper is struck.
func (c *Controller) WaitForKick(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.pacer.Wait(ctx); err != nil {
			return err
		}
		edge, err := c.detector.Poll()
		if err != nil {
			return fmt.Errorf("waiting for kick: %w", err)
		}
		if edge {
			return nil
		}
	}
}
