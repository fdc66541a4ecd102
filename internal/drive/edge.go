// Package drive wraps a core.Drive with bump edge detection, simulation and tracing.
package drive

import (
	"fmt"

	"lanebot/internal/core"
)

// BumpDetector turns the level-triggered bumper state into a one-shot rising
// edge. There is no debounce beyond the latch: a bumper held down reports a
// single edge.
type BumpDetector struct {
	drive  core.Drive
	bumped bool
}

func NewBumpDetector(d core.Drive) *BumpDetector {
	return &BumpDetector{drive: d}
}

// Poll reads the bumpers once and reports true only on a transition from
// "not bumped" to "bumped" on either side.
func (b *BumpDetector) Poll() (bool, error) {
	reading, err := b.drive.ReadBumpers()
	if err != nil {
		return false, fmt.Errorf("reading bumpers: %w", err)
	}
	bumped := reading.Any()
	edge := bumped && !b.bumped
	b.bumped = bumped
	return edge, nil
}
