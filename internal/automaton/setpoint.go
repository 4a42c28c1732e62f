package automaton

import (
	"math"

	"github.com/signalsfoundry/rao-orchestrator/crac"
	"github.com/signalsfoundry/rao-orchestrator/model"
)

// tolerance absorbs floating point noise when comparing setpoints and angles.
const tolerance = 1e-6

// roundAngleToTap snaps target to a tap angle of pst, moving away from
// initial: upwards it takes the smallest angle at or above target,
// downwards the largest angle at or below it. Targets beyond the table are
// pinned to its extreme angles.
func roundAngleToTap(pst *crac.RangeAction, target, initial float64) float64 {
	angles := pst.Angles()
	if len(angles) == 0 {
		return target
	}
	switch {
	case math.Abs(target-initial) <= tolerance:
		tap, _ := pst.AngleToTap(target)
		angle, _ := pst.TapToAngle(tap)
		return angle
	case target > initial:
		for _, a := range angles {
			if a >= target-tolerance {
				return a
			}
		}
		return angles[len(angles)-1]
	default:
		for i := len(angles) - 1; i >= 0; i-- {
			if angles[i] <= target+tolerance {
				return angles[i]
			}
		}
		return angles[0]
	}
}

// roundToStep snaps target to a multiple of step, away from initial.
func roundToStep(target, initial, step float64) float64 {
	if step <= 0 {
		return target
	}
	q := target / step
	if math.Abs(q-math.Round(q)) <= tolerance {
		return math.Round(q) * step
	}
	if target > initial {
		return math.Ceil(q) * step
	}
	return math.Floor(q) * step
}

// optimalSetpoint computes the setpoint that brings the margin of a cnec
// carrying flow back to zero given the total sensitivity of the moving
// actions, rounded for ra and clamped to [lo, hi].
func (s *Simulator) optimalSetpoint(current, flow, margin, sensitivity float64, ra *crac.RangeAction, lo, hi float64) float64 {
	sign := 1.0
	if flow < 0 {
		sign = -1
	}
	target := current + sign*math.Min(margin, 0)/sensitivity
	switch ra.Kind() {
	case model.RangePST:
		target = roundAngleToTap(ra, target, current)
	case model.RangeHVDC:
		target = roundToStep(target, current, s.hvdcStep)
	case model.RangeInjection:
		target = roundToStep(target, current, s.injectionStep)
	}
	return math.Max(lo, math.Min(hi, target))
}

// direction returns -1, 0 or 1 for the move from current to target.
func direction(target, current float64) int {
	switch d := target - current; {
	case d > tolerance:
		return 1
	case d < -tolerance:
		return -1
	default:
		return 0
	}
}
