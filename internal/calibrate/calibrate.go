// Package calibrate runs the timed rotations used to tune speed constants by
// hand: rotate the base for a fixed time and measure how far it actually went.
package calibrate

import (
	"context"
	"fmt"

	"lanebot/internal/config"
	"lanebot/internal/core"
)

// Rotate turns counter-clockwise at r.Speed for r.Duration, then stops.
func Rotate(ctx context.Context, d core.Drive, clock core.Clock, r config.TimedRotation) error {
	if err := rotateFor(ctx, d, clock, r, core.Forward); err != nil {
		return stopAfter(d, err)
	}
	return d.Stop()
}

// Spin turns clockwise for r.Duration, then counter-clockwise for as long,
// then stops. A base whose speed model is right ends where it started.
func Spin(ctx context.Context, d core.Drive, clock core.Clock, r config.TimedRotation) error {
	for _, dir := range []core.Direction{core.Backward, core.Forward} {
		if err := rotateFor(ctx, d, clock, r, dir); err != nil {
			return stopAfter(d, err)
		}
	}
	return d.Stop()
}

func rotateFor(ctx context.Context, d core.Drive, clock core.Clock, r config.TimedRotation, dir core.Direction) error {
	if err := d.DriveRotate(r.Speed, dir); err != nil {
		return fmt.Errorf("rotating: %w", err)
	}
	return clock.Sleep(ctx, r.Duration)
}

// stopAfter stops the drive after err interrupted a rotation.
func stopAfter(d core.Drive, err error) error {
	if stopErr := d.Stop(); stopErr != nil {
		return fmt.Errorf("%w (stop failed: %v)", err, stopErr)
	}
	return err
}
