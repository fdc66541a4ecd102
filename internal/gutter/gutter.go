// Package gutter predicts whether a straight drive along a heading leaves the
// lane through a side gutter before reaching the far end.
package gutter

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidHeading rejects headings the geometry cannot use: zero (parallel
// to the gutters), not finite, or at or beyond ±90°.
var ErrInvalidHeading = errors.New("invalid heading")

// Lane holds the course dimensions in mm.
type Lane struct {
	Width  float64
	Length float64
}

// Plan is the route for one run. Distances are in mm, the heading in degrees.
type Plan struct {
	HeadingDegrees float64
	// LateralDistanceToGutter is measured across the lane to the gutter the
	// heading points at.
	LateralDistanceToGutter        float64
	DistanceToGutterAlongHeading   float64
	DistanceToFarEndAlongHeading   float64
	PredictedGutter                bool
	RemainingLaneLengthAfterGutter float64
}

// Predict computes the plan for a robot offset strafePosition mm from the lane
// center and turned headingAngle degrees. A positive heading points at the
// gutter on the positive strafe side.
func Predict(strafePosition, headingAngle float64, lane Lane) (Plan, error) {
	if math.IsNaN(strafePosition) || math.IsInf(strafePosition, 0) {
		return Plan{}, fmt.Errorf("strafe position %v: not finite", strafePosition)
	}
	if headingAngle == 0 || math.IsNaN(headingAngle) || math.Abs(headingAngle) >= 90 {
		return Plan{}, fmt.Errorf("%w: %v°", ErrInvalidHeading, headingAngle)
	}

	angleRad := math.Abs(headingAngle) * math.Pi / 180

	half := lane.Width / 2
	lateral := half + strafePosition
	if headingAngle > 0 {
		lateral = half - strafePosition
	}

	toGutter := lateral / math.Sin(angleRad)
	toEnd := lane.Length / math.Cos(angleRad)

	return Plan{
		HeadingDegrees:                 headingAngle,
		LateralDistanceToGutter:        lateral,
		DistanceToGutterAlongHeading:   toGutter,
		DistanceToFarEndAlongHeading:   toEnd,
		PredictedGutter:                toGutter < toEnd,
		RemainingLaneLengthAfterGutter: lane.Length - lateral/math.Tan(angleRad),
	}, nil
}
