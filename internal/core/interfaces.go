// Package core defines the hardware-facing interfaces and shared types for lanebot.
package core

// Direction selects the sense of a motion: Forward/CounterClockwise is +1,
// Reverse/Clockwise is -1.
type Direction int

const (
	Forward  Direction = 1
	Backward Direction = -1
)

// Opposite returns the reversed direction.
func (d Direction) Opposite() Direction { return -d }

// Bumpers is a single reading of the front bump switches.
type Bumpers struct {
	Left  bool
	Right bool
}

// Any reports whether either side is pressed.
func (b Bumpers) Any() bool { return b.Left || b.Right }

// Drive is the motor and sensor capability of a differential-drive base.
// Velocities are in mm/s. Implementations are not required to be safe for
// concurrent use; callers sequence access so only one phase drives at a time.
type Drive interface {
	// DriveStraight moves forward (positive) or backward (negative).
	DriveStraight(velocity int) error
	// DriveRotate spins in place at speed; direction +1 is counter-clockwise.
	DriveRotate(speed int, direction Direction) error
	Stop() error
	ReadBumpers() (Bumpers, error)
}
