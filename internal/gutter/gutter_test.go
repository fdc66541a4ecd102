package gutter

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

var referenceLane = Lane{Width: 1117.6, Length: 3073.4}

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestPredict_ReferenceCase(t *testing.T) {
	plan, err := Predict(0, 45, referenceLane)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !near(plan.LateralDistanceToGutter, 558.8, 1e-9) {
		t.Errorf("lateral = %v, want 558.8", plan.LateralDistanceToGutter)
	}
	// 558.8·√2 and 3073.4·√2.
	if !near(plan.DistanceToGutterAlongHeading, 790.2625, 1e-3) {
		t.Errorf("to gutter = %v, want ≈790.26", plan.DistanceToGutterAlongHeading)
	}
	if !near(plan.DistanceToFarEndAlongHeading, 4346.4440, 1e-3) {
		t.Errorf("to end = %v, want ≈4346.44", plan.DistanceToFarEndAlongHeading)
	}
	if !plan.PredictedGutter {
		t.Error("expected gutter prediction")
	}
	if !near(plan.RemainingLaneLengthAfterGutter, 3073.4-558.8, 1e-6) {
		t.Errorf("remaining = %v, want %v", plan.RemainingLaneLengthAfterGutter, 3073.4-558.8)
	}
}

func TestPredict_SelectsNearGutterBySign(t *testing.T) {
	tests := []struct {
		strafe, heading float64
		lateral         float64
	}{
		{200, 10, 358.8},  // turned toward the positive side, already offset toward it
		{200, -10, 758.8}, // turned away
		{-200, 10, 758.8},
		{-200, -10, 358.8},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v@%v", tt.strafe, tt.heading), func(t *testing.T) {
			plan, err := Predict(tt.strafe, tt.heading, referenceLane)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !near(plan.LateralDistanceToGutter, tt.lateral, 1e-9) {
				t.Errorf("lateral = %v, want %v", plan.LateralDistanceToGutter, tt.lateral)
			}
		})
	}
}

func TestPredict_ShallowHeadingReachesEnd(t *testing.T) {
	plan, err := Predict(0, 5, referenceLane)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.PredictedGutter {
		t.Errorf("5° from center should reach the far end: %+v", plan)
	}
	if plan.RemainingLaneLengthAfterGutter >= 0 {
		t.Errorf("gutter point lies beyond the lane, remaining should be negative: %v", plan.RemainingLaneLengthAfterGutter)
	}
}

func TestPredict_Symmetry(t *testing.T) {
	cases := [][2]float64{{0, 45}, {120, 12}, {-300, 27.5}, {400, -3}, {-558.8, 30}}
	for _, c := range cases {
		strafe, heading := c[0], c[1]
		a, err := Predict(strafe, heading, referenceLane)
		if err != nil {
			t.Fatalf("Predict(%v, %v): %v", strafe, heading, err)
		}
		b, err := Predict(-strafe, -heading, referenceLane)
		if err != nil {
			t.Fatalf("Predict(%v, %v): %v", -strafe, -heading, err)
		}

		if a.PredictedGutter != b.PredictedGutter {
			t.Errorf("%v: prediction changed under mirroring", c)
		}
		if b.HeadingDegrees != -a.HeadingDegrees {
			t.Errorf("%v: heading should be negated, got %v and %v", c, a.HeadingDegrees, b.HeadingDegrees)
		}
		if !near(a.LateralDistanceToGutter, b.LateralDistanceToGutter, 1e-9) ||
			!near(a.DistanceToGutterAlongHeading, b.DistanceToGutterAlongHeading, 1e-9) ||
			!near(a.DistanceToFarEndAlongHeading, b.DistanceToFarEndAlongHeading, 1e-9) ||
			!near(a.RemainingLaneLengthAfterGutter, b.RemainingLaneLengthAfterGutter, 1e-9) {
			t.Errorf("%v: magnitudes changed under mirroring: %+v vs %+v", c, a, b)
		}
	}
}

func TestPredict_RejectsInvalidHeading(t *testing.T) {
	for _, heading := range []float64{0, math.NaN(), 90, -90, 135, math.Inf(1)} {
		_, err := Predict(0, heading, referenceLane)
		if !errors.Is(err, ErrInvalidHeading) {
			t.Errorf("heading %v: expected ErrInvalidHeading, got %v", heading, err)
		}
	}
}

func TestPredict_RejectsNonFiniteStrafe(t *testing.T) {
	if _, err := Predict(math.NaN(), 10, referenceLane); err == nil {
		t.Error("expected error for NaN strafe position")
	}
}

func ExamplePredict() {
	plan, _ := Predict(0, 45, Lane{Width: 1117.6, Length: 3073.4})
	fmt.Printf("gutter=%v after %.1fmm (end at %.1fmm)\n",
		plan.PredictedGutter, plan.DistanceToGutterAlongHeading, plan.DistanceToFarEndAlongHeading)
	// Output: gutter=true after 790.3mm (end at 4346.4mm)
}
